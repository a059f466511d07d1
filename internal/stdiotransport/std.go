package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// StdTransport speaks the same newline-delimited JSON framing as Transport,
// but over the process's own stdin/stdout rather than a spawned child's —
// this is the shape client mode needs: the parent process itself owns
// stdin/stdout and acts as an MCP server to whatever spawned it.
type StdTransport struct {
	in  *bufio.Reader
	out io.Writer

	mu     sync.Mutex
	closed bool
}

// NewStd wraps os.Stdin/os.Stdout.
func NewStd() *StdTransport {
	return &StdTransport{
		in:  bufio.NewReaderSize(os.Stdin, 64*1024),
		out: os.Stdout,
	}
}

func (s *StdTransport) Send(_ context.Context, frame json.RawMessage) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if _, err := s.out.Write(frame); err != nil {
		return err
	}
	_, err := s.out.Write([]byte{'\n'})
	return err
}

func (s *StdTransport) Receive(ctx context.Context) (json.RawMessage, error) {
	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := s.in.ReadBytes('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		line := trimNewline(r.line)
		if len(line) > 0 {
			return line, nil
		}
		if r.err != nil {
			return nil, transport.ErrClosed
		}
		return s.Receive(ctx)
	}
}

func (s *StdTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ transport.Transport = (*StdTransport)(nil)
