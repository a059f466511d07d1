package stdiotransport_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yn-academia/mcp-proxy/internal/stdiotransport"
	"github.com/yn-academia/mcp-proxy/internal/transport"
)

func TestEchoRoundTrip(t *testing.T) {
	tr, err := stdiotransport.New(stdiotransport.Params{
		Command: "cat",
		Env:     os.Environ(),
	})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.NoError(t, tr.Send(ctx, msg))

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(msg), string(got))
}

func TestSpawnFailure(t *testing.T) {
	_, err := stdiotransport.New(stdiotransport.Params{Command: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	var spawnErr *stdiotransport.SpawnFailedError
	require.ErrorAs(t, err, &spawnErr)
}

func TestCloseAfterChildExits(t *testing.T) {
	tr, err := stdiotransport.New(stdiotransport.Params{
		Command:   "sh",
		Args:      []string{"-c", "exit 0"},
		Env:       os.Environ(),
		KillGrace: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = tr.Receive(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.NoError(t, tr.Close())
}
