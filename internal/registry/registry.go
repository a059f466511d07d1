// Package registry implements the backend registry (C6): loading named
// backend descriptors from a JSON config file or CLI flags (mutually
// exclusive), and the per-session child instantiation / shutdown lifecycle
// built on internal/stdiotransport.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/shlex"
	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/yn-academia/mcp-proxy/internal/stdiotransport"
)

// Descriptor is a backend descriptor: name, command, argv, environment
// overlay, working directory and enabled flag.
type Descriptor struct {
	Name    string
	Command string
	Args    []string
	Env     []string
	Dir     string
	Enabled bool
}

// configFile mirrors the named-server-config JSON schema: only
// command/args/enabled are honoured; timeout and transportType are accepted
// but ignored, since the registry always spawns stdio backends.
type configFile struct {
	McpServers map[string]configServer `json:"mcpServers"`
}

type configServer struct {
	Command       string   `json:"command"`
	Args          []string `json:"args"`
	Enabled       *bool    `json:"enabled"`
	Timeout       *int     `json:"timeout"`
	TransportType *string  `json:"transportType"`
}

// LoadFromFile loads named backend descriptors from a JSON config file. This
// source is exclusive of CLI --named-server flags when present.
func LoadFromFile(ctx context.Context, path string, baseEnv []string) (map[string]Descriptor, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading named server config %q: %w", path, err)
	}
	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing named server config %q: %w", path, err)
	}
	if cfg.McpServers == nil {
		return nil, fmt.Errorf("named server config %q is missing the \"mcpServers\" key", path)
	}

	result := make(map[string]Descriptor, len(cfg.McpServers))
	for name, entry := range cfg.McpServers {
		if entry.Command == "" {
			continue
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if !enabled {
			continue
		}
		result[name] = Descriptor{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     cloneEnv(baseEnv),
			Enabled: true,
		}
	}
	return result, nil
}

// LoadFromCLI parses --named-server NAME COMMAND_STRING pairs, splitting
// COMMAND_STRING with POSIX shell-word-splitting rules.
func LoadFromCLI(defs [][2]string, baseEnv []string) (map[string]Descriptor, error) {
	result := make(map[string]Descriptor, len(defs))
	for _, def := range defs {
		name, commandString := def[0], def[1]
		parts, err := shlex.Split(commandString)
		if err != nil {
			return nil, fmt.Errorf("parsing command string for named server %q: %w", name, err)
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty command string for named server %q", name)
		}
		result[name] = Descriptor{
			Name:    name,
			Command: parts[0],
			Args:    parts[1:],
			Env:     cloneEnv(baseEnv),
			Enabled: true,
		}
	}
	return result, nil
}

func cloneEnv(env []string) []string {
	out := make([]string, len(env))
	copy(out, env)
	return out
}

// BaseEnv builds the base environment shared by every spawned backend:
// the parent's environment when passEnvironment is set, empty otherwise.
func BaseEnv(passEnvironment bool) []string {
	if !passEnvironment {
		return nil
	}
	return os.Environ()
}

// Registry holds immutable backend descriptors plus the live child instances
// spawned against them, and tears them down in reverse spawn order.
type Registry struct {
	mu          sync.Mutex
	descriptors map[string]Descriptor
	names       []string
	instances   []*stdiotransport.Transport
	log         zerolog.Logger
}

// New builds a Registry over a fixed descriptor set. The set is immutable
// after construction.
func New(descriptors map[string]Descriptor, log zerolog.Logger) *Registry {
	names := make([]string, 0, len(descriptors))
	for name := range descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{descriptors: descriptors, names: names, log: log}
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Each returns descriptors in a stable (name-sorted) order.
func (r *Registry) Each() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Instantiate spawns a fresh child process for d. Every call produces an
// independent child; no sharing, no id rewriting required downstream.
func (r *Registry) Instantiate(d Descriptor) (*stdiotransport.Transport, error) {
	tr, err := stdiotransport.New(stdiotransport.Params{
		Command: d.Command,
		Args:    d.Args,
		Env:     d.Env,
		Dir:     d.Dir,
		Logger:  r.log,
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.instances = append(r.instances, tr)
	r.mu.Unlock()
	return tr, nil
}

// Shutdown closes every instantiated child in reverse spawn order.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	instances := r.instances
	r.instances = nil
	r.mu.Unlock()

	for i := len(instances) - 1; i >= 0; i-- {
		_ = instances[i].Close()
	}
}
