// Command mcp-proxy is the bidirectional MCP transport bridge: client mode
// bridges parent stdio to a remote HTTP endpoint; server mode routes many
// concurrent HTTP sessions to named stdio backends.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/yn-academia/mcp-proxy/internal/config"
	"github.com/yn-academia/mcp-proxy/internal/httptransport"
	"github.com/yn-academia/mcp-proxy/internal/logging"
	"github.com/yn-academia/mcp-proxy/internal/registry"
	"github.com/yn-academia/mcp-proxy/internal/router"
	"github.com/yn-academia/mcp-proxy/internal/session"
	"github.com/yn-academia/mcp-proxy/internal/stdiotransport"
)

// gracePeriod bounds how long server-mode shutdown waits for in-flight
// sessions to drain before the process exits.
const gracePeriod = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	opts, err := config.ParseArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-proxy:", err)
		return 2
	}
	log := logging.New(opts.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.IsURL(opts.Positional.CommandOrURL) {
		return runClient(ctx, opts, log)
	}
	return runServer(ctx, opts, log)
}

func runClient(ctx context.Context, opts *config.Options, log zerolog.Logger) int {
	headers := http.Header{}
	for _, h := range opts.Headers {
		headers.Add(h.Key, h.Value)
	}

	remote, err := httptransport.Dial(ctx, httptransport.DialOptions{
		URL:       opts.Positional.CommandOrURL,
		Transport: httptransport.Kind(opts.Transport),
		Headers:   headers,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-proxy: failed to dial upstream:", err)
		return 1
	}

	sess := session.New(stdiotransport.NewStd(), remote, log)
	if err := sess.Run(ctx); err != nil {
		log.Error().Err(err).Msg("client session ended with error")
	}
	return 0
}

func runServer(ctx context.Context, opts *config.Options, log zerolog.Logger) int {
	if opts.Positional.CommandOrURL == "" && opts.NamedServerConfig == "" && len(opts.NamedServers) == 0 {
		fmt.Fprintln(os.Stderr, "mcp-proxy: no backend configured: provide a command/URL, --named-server, or --named-server-config")
		return 1
	}

	baseEnv := registry.BaseEnv(opts.PassEnvironment)

	var descriptors map[string]registry.Descriptor
	var err error
	switch {
	case opts.NamedServerConfig != "":
		descriptors, err = registry.LoadFromFile(ctx, opts.NamedServerConfig, baseEnv)
	case len(opts.NamedServers) > 0:
		descriptors, err = registry.LoadFromCLI(pairsFromFlags(opts.NamedServers), baseEnv)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-proxy: failed to load named servers:", err)
		return 1
	}

	reg := registry.New(descriptors, log)

	var routerOpts []router.Option
	if opts.Positional.CommandOrURL != "" {
		env := append([]string{}, baseEnv...)
		for _, e := range opts.Env {
			env = append(env, e.Key+"="+e.Value)
		}
		routerOpts = append(routerOpts, router.WithDefaultBackend(registry.Descriptor{
			Name:    "",
			Command: opts.Positional.CommandOrURL,
			Args:    append(opts.Positional.Args, opts.ExtraArgs...),
			Env:     env,
			Dir:     opts.Cwd,
			Enabled: true,
		}))
	}
	routerOpts = append(routerOpts,
		router.WithStateless(opts.Stateless),
		router.WithAllowOrigins(opts.AllowOrigin),
	)

	rt := router.New(reg, log, routerOpts...)

	addr := net.JoinHostPort(opts.Host, portString(opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcp-proxy: failed to bind:", err)
		return 1
	}

	srv := &http.Server{Handler: rt}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	log.Info().Str("addr", listener.Addr().String()).Msg("mcp-proxy listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracePeriod)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		reg.Shutdown()
		return 0
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "mcp-proxy: server error:", err)
			return 1
		}
		return 0
	}
}

func pairsFromFlags(flags []config.NamedServerFlag) [][2]string {
	pairs := make([][2]string, len(flags))
	for i, f := range flags {
		pairs[i] = [2]string{f.Name, f.CommandString}
	}
	return pairs
}

func portString(port int) string {
	if port == 0 {
		return "0"
	}
	return fmt.Sprintf("%d", port)
}
