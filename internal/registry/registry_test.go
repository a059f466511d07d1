package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yn-academia/mcp-proxy/internal/registry"
)

func TestLoadFromFileSkipsDisabledAndInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"mcpServers": {
			"fetch": {"command": "uvx", "args": ["mcp-server-fetch"]},
			"disabled": {"command": "echo", "enabled": false},
			"broken": {"args": ["--help"]}
		}
	}`), 0o644))

	descriptors, err := registry.LoadFromFile(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	fetch, ok := descriptors["fetch"]
	require.True(t, ok)
	assert.Equal(t, "uvx", fetch.Command)
	assert.Equal(t, []string{"mcp-server-fetch"}, fetch.Args)
}

func TestLoadFromFileMissingKeyErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := registry.LoadFromFile(context.Background(), path, nil)
	assert.Error(t, err)
}

func TestLoadFromCLISplitsCommandString(t *testing.T) {
	descriptors, err := registry.LoadFromCLI([][2]string{
		{"fetch", "uvx mcp-server-fetch --no-cache"},
	}, nil)
	require.NoError(t, err)
	fetch, ok := descriptors["fetch"]
	require.True(t, ok)
	assert.Equal(t, "uvx", fetch.Command)
	assert.Equal(t, []string{"mcp-server-fetch", "--no-cache"}, fetch.Args)
}

func TestRegistryInstantiateAndShutdown(t *testing.T) {
	descriptors, err := registry.LoadFromCLI([][2]string{
		{"echo", "cat"},
	}, nil)
	require.NoError(t, err)

	reg := registry.New(descriptors, zerolog.Nop())
	d, ok := reg.Lookup("echo")
	require.True(t, ok)

	tr, err := reg.Instantiate(d)
	require.NoError(t, err)
	require.NotNil(t, tr)

	reg.Shutdown()
}
