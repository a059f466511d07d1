package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yn-academia/mcp-proxy/internal/session"
	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// memTransport is an in-memory transport.Transport used to test Session
// forwarding without real processes or sockets.
type memTransport struct {
	mu     sync.Mutex
	closed bool
	inbox  chan json.RawMessage
	sent   []json.RawMessage
}

func newMemTransport() *memTransport {
	return &memTransport{inbox: make(chan json.RawMessage, 16)}
}

func (m *memTransport) Send(_ context.Context, frame json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrClosed
	}
	m.sent = append(m.sent, frame)
	return nil
}

func (m *memTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-m.inbox:
		if !ok {
			return nil, transport.ErrClosed
		}
		return msg, nil
	}
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.inbox)
	}
	return nil
}

func (m *memTransport) push(frame string) { m.inbox <- json.RawMessage(frame) }

func TestSessionForwardsRequestAndResponse(t *testing.T) {
	left := newMemTransport()
	right := newMemTransport()
	s := session.New(left, right, zerolog.Nop())

	left.push(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	right.push(`{"jsonrpc":"2.0","id":1,"result":{}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	time.Sleep(50 * time.Millisecond)
	left.Close()
	right.Close()
	<-done

	require.Len(t, right.sent, 1)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(right.sent[0]))
	require.Len(t, left.sent, 1)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(left.sent[0]))
}

func TestSessionTerminatesOnEitherClose(t *testing.T) {
	left := newMemTransport()
	right := newMemTransport()
	s := session.New(left, right, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	left.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session did not terminate after left closed")
	}
}

func TestSessionDropsMalformedFrame(t *testing.T) {
	left := newMemTransport()
	right := newMemTransport()
	s := session.New(left, right, zerolog.Nop())

	left.push(`not json`)
	left.push(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	time.Sleep(50 * time.Millisecond)
	left.Close()
	right.Close()
	<-done

	require.Len(t, right.sent, 1)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, string(right.sent[0]))
}
