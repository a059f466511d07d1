package httptransport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// ServerTransport is the router-facing half of a server-mode Session: the
// HTTP handlers push client→backend frames into it and drain
// backend→client frames out of it, while the paired Session sees it as an
// ordinary transport.Transport.
type ServerTransport struct {
	toBackend chan json.RawMessage
	toClient  chan json.RawMessage

	done      chan struct{}
	closeOnce sync.Once
}

// NewServerTransport creates an unattached server-side transport. queueSize
// bounds both directions with a small constant so a slow peer applies
// backpressure instead of unbounded buffering.
func NewServerTransport(queueSize int) *ServerTransport {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &ServerTransport{
		toBackend: make(chan json.RawMessage, queueSize),
		toClient:  make(chan json.RawMessage, queueSize),
		done:      make(chan struct{}),
	}
}

// Send delivers a backend→client frame; called by Session on the
// right.receive → left.send leg.
func (s *ServerTransport) Send(ctx context.Context, frame json.RawMessage) error {
	select {
	case s.toClient <- frame:
		return nil
	case <-s.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive yields the next client→backend frame; called by Session on the
// left.receive → right.send leg.
func (s *ServerTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-s.toBackend:
		return msg, nil
	case <-s.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the transport: Send/Receive/Push/Next calls blocked on it return
// end-of-stream, and so do later calls whose own channel operation is not
// ready (when it is, select picks either case). The underlying channels are
// never closed themselves, so a
// concurrent sender racing this call can never panic on a closed channel —
// only the done signal is closed, and every send/receive selects on it.
func (s *ServerTransport) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Push enqueues a frame received from the HTTP client, for delivery to the
// backend. Called by the SSE companion-POST or Streamable POST handler.
func (s *ServerTransport) Push(ctx context.Context, frame json.RawMessage) error {
	select {
	case s.toBackend <- frame:
		return nil
	case <-s.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next frame bound for the HTTP client, or ok=false if the
// transport closed or ctx ended first. Called by the SSE stream writer and by
// the synchronous Streamable response path.
func (s *ServerTransport) Next(ctx context.Context) (json.RawMessage, bool) {
	select {
	case msg := <-s.toClient:
		return msg, true
	case <-s.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

var _ transport.Transport = (*ServerTransport)(nil)
