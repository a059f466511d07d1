// Package session implements the duplex pairing between two transports (C4):
// it forwards frames in both directions, preserves per-direction order, and
// tears down both sides together on the first failure from either one. It
// never correlates request ids across directions and never waits for a
// response before accepting the next outbound frame, so no id rewriting is
// needed as long as each Session owns its own right-hand transport.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yn-academia/mcp-proxy/internal/codec"
	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// Session pairs a left (incoming/parent) transport with a right
// (outgoing/backend) transport and runs the two forwarders plus a supervisor.
type Session struct {
	ID    string
	Left  transport.Transport
	Right transport.Transport

	log zerolog.Logger

	err   error
	errMu sync.Mutex
}

// New creates a Session. Call Run to start forwarding; Run blocks until
// termination.
func New(left, right transport.Transport, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:    id,
		Left:  left,
		Right: right,
		log:   log.With().Str("session", id).Logger(),
	}
}

// Run forwards left→right and right→left concurrently until either direction
// ends, then closes both transports and returns. It is safe to call exactly
// once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.forward(ctx, "left->right", s.Left, s.Right)
		cancel()
	}()
	go func() {
		defer wg.Done()
		s.forward(ctx, "right->left", s.Right, s.Left)
		cancel()
	}()

	<-ctx.Done()
	wg.Wait()

	_ = s.Left.Close()
	_ = s.Right.Close()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// forward drains source.Receive into sink.Send until either errors, recording
// the first error seen across both directions.
func (s *Session) forward(ctx context.Context, direction string, source, sink transport.Transport) {
	for {
		frame, err := source.Receive(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && !errors.Is(err, context.Canceled) {
				s.recordErr(err)
				s.log.Info().Str("direction", direction).Err(err).Msg("session direction terminated")
			}
			return
		}
		if _, classifyErr := codec.Parse(frame); classifyErr != nil {
			s.log.Warn().Str("direction", direction).Err(classifyErr).Msg("dropping malformed frame")
			continue
		}
		if err := sink.Send(ctx, frame); err != nil {
			s.recordErr(err)
			s.log.Info().Str("direction", direction).Err(err).Msg("send failed, ending session")
			return
		}
	}
}

func (s *Session) recordErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
