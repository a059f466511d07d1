// Package transport defines the duplex channel abstraction shared by every
// concrete transport (stdio child process, HTTP client, HTTP server session).
// A Session is written once against this interface; it never knows whether
// its peer is a spawned process or a remote endpoint.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by Receive once the transport has reached
// end-of-stream, either because the peer closed it or Close was called.
var ErrClosed = errors.New("transport closed")

// Transport is an abstract duplex channel: send a frame, receive frames in
// order, close. Implementations are safe for concurrent Send and Receive but
// not for concurrent Receive calls (there is exactly one reader per side).
type Transport interface {
	// Send writes one frame to the peer. It must not reorder frames relative
	// to other Send calls made from the same goroutine.
	Send(ctx context.Context, frame json.RawMessage) error
	// Receive blocks for the next inbound frame. It returns ErrClosed (or a
	// wrapped form of it) once the stream has ended.
	Receive(ctx context.Context) (json.RawMessage, error)
	// Close releases the transport's resources. It is idempotent.
	Close() error
}
