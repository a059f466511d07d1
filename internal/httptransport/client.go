package httptransport

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// Kind selects which wire protocol the client speaks.
type Kind string

const (
	KindSSE           Kind = "sse"
	KindStreamableHTTP Kind = "streamablehttp"
)

// DialOptions mirrors the client-mode CLI surface: the upstream URL, the
// selected transport, and headers to forward, with API_ACCESS_TOKEN applied
// as a bearer token when no explicit Authorization header was given.
type DialOptions struct {
	URL       string
	Transport Kind
	Headers   http.Header
	Client    *http.Client
}

// Dial opens a client-mode transport against a remote MCP endpoint.
func Dial(ctx context.Context, opts DialOptions) (transport.Transport, error) {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if headers.Get("Authorization") == "" {
		if token := os.Getenv("API_ACCESS_TOKEN"); token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	switch opts.Transport {
	case KindStreamableHTTP:
		return DialStreamable(client, opts.URL, headers), nil
	case KindSSE, "":
		return DialSSE(ctx, client, opts.URL, headers)
	default:
		return nil, fmt.Errorf("unknown client transport %q", opts.Transport)
	}
}
