// Package stdiotransport spawns a child process and speaks newline-delimited
// JSON-RPC over its stdin/stdout, satisfying transport.Transport.
//
// github.com/viant/jsonrpc/transport/client/stdio only exposes
// WithArguments/WithHandler/WithListener on top of a bare command string; it
// has no hook for an environment overlay, a working directory or kill
// escalation, all of which this package's spawn contract requires. Rather
// than fight that surface this package builds directly on os/exec.
package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// SpawnFailedError is returned by New when the child process could not be
// started at all (bad path, permission denied, ...).
type SpawnFailedError struct {
	Command string
	Reason  error
}

func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("spawn failed for %q: %v", e.Command, e.Reason)
}
func (e *SpawnFailedError) Unwrap() error { return e.Reason }

// Params configures a child process spawn.
type Params struct {
	Command string
	Args    []string
	// Env is the full environment to hand to the child (already merged: pass-through ∪ overlay).
	Env []string
	Dir string
	// KillGrace bounds how long Close waits after closing stdin before escalating to SIGKILL.
	KillGrace time.Duration
	Logger    zerolog.Logger
}

// Transport supervises one child process for the lifetime of a single Session.
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	log    zerolog.Logger

	killGrace time.Duration

	mu       sync.Mutex
	closed   bool
	closeErr error
	exitCh   chan struct{}
	exitErr  error
}

// New resolves Params.Command on PATH, spawns it and wires stdin/stdout for
// newline-delimited JSON framing. The child's stderr is inherited so its logs
// reach the operator directly, per the bridge's spawn contract.
func New(params Params) (*Transport, error) {
	cmd := exec.Command(params.Command, params.Args...)
	cmd.Env = params.Env
	cmd.Dir = params.Dir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnFailedError{Command: params.Command, Reason: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnFailedError{Command: params.Command, Reason: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnFailedError{Command: params.Command, Reason: err}
	}

	grace := params.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	t := &Transport{
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReaderSize(stdout, 64*1024),
		log:       params.Logger,
		killGrace: grace,
		exitCh:    make(chan struct{}),
	}

	go t.awaitExit()
	return t, nil
}

func (t *Transport) awaitExit() {
	err := t.cmd.Wait()
	t.mu.Lock()
	t.exitErr = err
	t.mu.Unlock()
	close(t.exitCh)
	if err != nil {
		t.log.Info().Err(err).Int("pid", t.cmd.Process.Pid).Msg("child process exited")
	} else {
		t.log.Info().Int("pid", t.cmd.Process.Pid).Msg("child process exited cleanly")
	}
}

// Pid returns the spawned child's process id, useful for diagnostics.
func (t *Transport) Pid() int {
	if t.cmd == nil || t.cmd.Process == nil {
		return -1
	}
	return t.cmd.Process.Pid
}

// Send writes frame followed by a newline to the child's stdin.
func (t *Transport) Send(_ context.Context, frame json.RawMessage) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if _, err := t.stdin.Write(frame); err != nil {
		return err
	}
	_, err := t.stdin.Write([]byte{'\n'})
	return err
}

// Receive reads the next newline-terminated line from the child's stdout.
// bufio.Reader.ReadBytes has no fixed token-size ceiling (unlike bufio.Scanner's
// default), which matters because the protocol does not bound line length.
func (t *Transport) Receive(ctx context.Context) (json.RawMessage, error) {
	type result struct {
		line []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := t.stdout.ReadBytes('\n')
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
		return t.Receive(ctx)
	}
}

func trimNewline(b []byte) []byte {
	n := len(b)
	for n > 0 && (b[n-1] == '\n' || b[n-1] == '\r') {
		n--
	}
	return b[:n]
}

// Close signals orderly shutdown by closing stdin, waits up to KillGrace for
// the child to exit, then escalates to SIGKILL.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.closeErr
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.stdin.Close()

	select {
	case <-t.exitCh:
		return nil
	case <-time.After(t.killGrace):
	}

	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	<-t.exitCh
	return nil
}
