// Package router implements the HTTP server / multi-tenant router (C5): it
// accepts HTTP connections, resolves the URL path against the backend table,
// and instantiates a Session per client, pairing an HTTP-facing
// httptransport.ServerTransport against a freshly spawned stdio child from
// internal/registry.
//
// Dispatch is a single route handler wrapped in a chained-middleware handler,
// routing on opaque path prefixes (via splitRoute) rather than typed
// per-method dispatch, since this proxy never interprets MCP method semantics.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yn-academia/mcp-proxy/internal/collection"
	"github.com/yn-academia/mcp-proxy/internal/httptransport"
	"github.com/yn-academia/mcp-proxy/internal/registry"
	"github.com/yn-academia/mcp-proxy/internal/session"
)

// synchronousReplyWait bounds how long a stateless or non-streaming
// Streamable POST waits for a single reply frame before answering 202.
const synchronousReplyWait = 5 * time.Second

// Router is the server-mode entry point: an http.Handler routing to named
// stdio backends plus the default (unnamed) one.
type Router struct {
	registry  *registry.Registry
	def       *registry.Descriptor
	stateless bool
	cors      *CORS
	log       zerolog.Logger

	sessions *collection.SyncMap[string, *liveSession]
}

// Option configures a Router at construction.
type Option func(*Router)

// WithDefaultBackend registers the unnamed server served at the root paths.
func WithDefaultBackend(d registry.Descriptor) Option {
	return func(r *Router) { r.def = &d }
}

// WithStateless toggles stateless mode for the Streamable HTTP endpoint.
func WithStateless(stateless bool) Option {
	return func(r *Router) { r.stateless = stateless }
}

// WithAllowOrigins sets the CORS allow-list.
func WithAllowOrigins(origins []string) Option {
	return func(r *Router) { r.cors = NewCORS(origins) }
}

// New builds a Router over reg plus any options.
func New(reg *registry.Registry, log zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		cors:     NewCORS(nil),
		log:      log,
		sessions: collection.NewSyncMap[string, *liveSession](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// liveSession binds one HTTP-facing transport to one spawned child for the
// lifetime of a browser/client session.
type liveSession struct {
	id     string
	server *httptransport.ServerTransport
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := chain(http.HandlerFunc(r.route), r.cors.Middleware)
	handler.ServeHTTP(w, req)
}

func (r *Router) route(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if req.URL.Path == "/status" {
		r.handleStatus(w, req)
		return
	}

	backendName, sub, ok := splitRoute(req.URL.Path)
	if !ok {
		http.NotFound(w, req)
		return
	}
	descriptor, ok := r.resolve(backendName)
	if !ok {
		http.NotFound(w, req)
		return
	}

	switch sub {
	case "sse":
		r.handleSSE(w, req, descriptor)
	case "messages/":
		r.handleMessages(w, req)
	case "mcp":
		r.handleStreamable(w, req, descriptor)
	default:
		http.NotFound(w, req)
	}
}

func (r *Router) resolve(backendName string) (registry.Descriptor, bool) {
	if backendName == "" {
		if r.def == nil {
			return registry.Descriptor{}, false
		}
		return *r.def, true
	}
	return r.registry.Lookup(backendName)
}

// splitRoute separates the backend name (empty for the default server) from
// the transport sub-path ("sse", "messages/", "mcp").
func splitRoute(path string) (backend, sub string, ok bool) {
	path = strings.TrimPrefix(path, "/")
	if rest, found := strings.CutPrefix(path, "servers/"); found {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			return "", "", false
		}
		return parts[0], parts[1], true
	}
	return "", path, true
}

func (r *Router) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleSSE serves the long-lived GET stream of the SSE variant: it spawns
// the backend, announces the companion POST endpoint as the first
// event, then drains backend→client frames for the life of the connection.
func (r *Router) handleSSE(w http.ResponseWriter, req *http.Request, d registry.Descriptor) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	live, err := r.startSession(d)
	if err != nil {
		r.log.Error().Err(err).Str("backend", d.Name).Msg("failed to spawn backend for SSE session")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer r.endSession(live)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := messagesEndpoint(req, live.id)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	ctx := req.Context()
	for {
		frame, ok := live.server.Next(ctx)
		if !ok {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", frame)
		flusher.Flush()
	}
}

func messagesEndpoint(req *http.Request, sessionID string) string {
	prefix, _, _ := splitRoute(req.URL.Path)
	path := "/messages/"
	if prefix != "" {
		path = "/servers/" + prefix + "/messages/"
	}
	return fmt.Sprintf("%s?session_id=%s", path, sessionID)
}

// handleMessages is the SSE companion POST endpoint: it pushes the raw body
// bytes onto the matching session's inbound queue and acknowledges.
func (r *Router) handleMessages(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := req.URL.Query().Get("session_id")
	live := r.lookupSession(sessionID)
	if live == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if err := live.server.Push(req.Context(), json.RawMessage(body)); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

const sessionIDHeader = "Mcp-Session-Id"

// handleStreamable implements the Streamable HTTP variant. GET requests go
// to handleStreamableListen; in stateless mode a POST goes to
// handleStatelessStreamable; otherwise a POST binds a persistent per-session
// child keyed by Mcp-Session-Id.
func (r *Router) handleStreamable(w http.ResponseWriter, req *http.Request, d registry.Descriptor) {
	if req.Method == http.MethodGet {
		r.handleStreamableListen(w, req)
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if r.stateless {
		r.handleStatelessStreamable(w, req, d, body)
		return
	}

	sessionID := req.Header.Get(sessionIDHeader)
	var live *liveSession
	if sessionID != "" {
		live = r.lookupSession(sessionID)
		if live == nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	} else {
		live, err = r.startSession(d)
		if err != nil {
			r.log.Error().Err(err).Str("backend", d.Name).Msg("failed to spawn backend for streamable session")
			http.Error(w, "backend unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set(sessionIDHeader, live.id)
	}

	if err := live.server.Push(req.Context(), json.RawMessage(body)); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}

	r.writeStreamableReply(w, req, live.server, acceptsEventStream(req))
}

// handleStatelessStreamable spawns an isolated child per request, forwards
// the one frame, waits for one reply, and tears the child down — no session
// header, no persistent binding.
func (r *Router) handleStatelessStreamable(w http.ResponseWriter, req *http.Request, d registry.Descriptor, body []byte) {
	live, err := r.startSession(d)
	if err != nil {
		r.log.Error().Err(err).Str("backend", d.Name).Msg("failed to spawn backend for stateless request")
		http.Error(w, "backend unavailable", http.StatusBadGateway)
		return
	}
	defer r.endSession(live)

	if err := live.server.Push(req.Context(), json.RawMessage(body)); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	r.writeStreamableReply(w, req, live.server, false)
}

func acceptsEventStream(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/event-stream")
}

// writeStreamableReply answers a Streamable POST either as a held-open SSE
// stream (when streaming is set) or as a single bounded-wait JSON response.
// The stateful path sets streaming from the client's Accept header; the
// stateless path always passes false.
func (r *Router) writeStreamableReply(w http.ResponseWriter, req *http.Request, server *httptransport.ServerTransport, streaming bool) {
	if streaming {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		ctx := req.Context()
		for {
			frame, ok := server.Next(ctx)
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}

	ctx, cancel := context.WithTimeout(req.Context(), synchronousReplyWait)
	defer cancel()
	frame, ok := server.Next(ctx)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(frame)
}

// handleStreamableListen serves an optional long-lived GET used to receive
// server-initiated notifications outside of a request/response pair.
func (r *Router) handleStreamableListen(w http.ResponseWriter, req *http.Request) {
	sessionID := req.Header.Get(sessionIDHeader)
	live := r.lookupSession(sessionID)
	if live == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	ctx := req.Context()
	for {
		frame, ok := live.server.Next(ctx)
		if !ok {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", frame)
		flusher.Flush()
	}
}

// startSession spawns a fresh child for d, pairs it with a new
// ServerTransport behind a Session, and registers it under a minted id.
// The session's lifetime is governed by transport EOF / explicit teardown,
// not by the HTTP request that triggered it.
func (r *Router) startSession(d registry.Descriptor) (*liveSession, error) {
	child, err := r.registry.Instantiate(d)
	if err != nil {
		return nil, err
	}

	server := httptransport.NewServerTransport(64)
	sess := session.New(server, child, r.log)

	live := &liveSession{id: uuid.NewString(), server: server, done: make(chan struct{})}
	runCtx, cancel := context.WithCancel(context.Background())
	live.cancel = cancel

	r.sessions.Put(live.id, live)

	go func() {
		defer close(live.done)
		_ = sess.Run(runCtx)
		r.sessions.Delete(live.id)
	}()

	return live, nil
}

func (r *Router) lookupSession(id string) *liveSession {
	if id == "" {
		return nil
	}
	live, _ := r.sessions.Get(id)
	return live
}

// endSession tears down a session explicitly, used by the handlers that own
// the session for exactly one request (SSE GET, stateless POST).
func (r *Router) endSession(live *liveSession) {
	_ = live.server.Close()
	live.cancel()
	<-live.done
}
