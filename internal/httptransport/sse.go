// Package httptransport speaks the two MCP HTTP wire protocols — SSE and
// Streamable HTTP — from the client side, i.e. the role the proxy plays when
// bridging a local stdio parent to a remote endpoint (client mode).
//
// github.com/viant/jsonrpc/transport/client/http/{sse,streamable} correlate
// every Send with its matching response by id, because they back a typed MCP
// client that makes blocking calls. This proxy instead forwards frames
// independently and never waits for a response to arrive before accepting
// the next outbound frame, so this package is built directly on net/http to
// preserve that uncorrelated, order-preserving forwarding semantics.
package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/yn-academia/mcp-proxy/internal/transport"
)

// SSEClient implements transport.Transport against the SSE variant: a single
// long-lived GET stream for inbound messages, whose first event carries the
// companion POST endpoint, and discrete POSTs for outbound messages.
type SSEClient struct {
	httpClient *http.Client
	headers    http.Header

	inbound chan json.RawMessage
	errCh   chan error

	mu           sync.Mutex
	postEndpoint *url.URL
	postReady    chan struct{}
	closed       bool
	cancelStream context.CancelFunc
}

// DialSSE opens the event stream and returns once the connection is
// established (not once the companion endpoint has arrived — Send blocks
// until it does).
func DialSSE(ctx context.Context, client *http.Client, rawURL string, headers http.Header) (*SSEClient, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SSE url: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, base.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header = headers.Clone()
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("SSE endpoint returned status %d", resp.StatusCode)
	}

	c := &SSEClient{
		httpClient:   client,
		headers:      headers,
		inbound:      make(chan json.RawMessage, 64),
		errCh:        make(chan error, 1),
		postReady:    make(chan struct{}),
		cancelStream: cancel,
	}
	go c.readLoop(base, resp.Body)
	return c, nil
}

func (c *SSEClient) readLoop(base *url.URL, body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	first := true
	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = nil
		if first {
			first = false
			endpoint, err := url.Parse(payload)
			if err != nil {
				c.fail(fmt.Errorf("invalid companion endpoint %q: %w", payload, err))
				return
			}
			c.mu.Lock()
			c.postEndpoint = base.ResolveReference(endpoint)
			c.mu.Unlock()
			close(c.postReady)
			return
		}
		c.inbound <- json.RawMessage([]byte(payload))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// ignore event:/id:/retry: fields; the bridge does not need them
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		c.fail(err)
		return
	}
	c.fail(transport.ErrClosed)
}

func (c *SSEClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
	close(c.inbound)
}

// Send POSTs frame to the companion endpoint, blocking until the endpoint
// event has arrived on the stream.
func (c *SSEClient) Send(ctx context.Context, frame json.RawMessage) error {
	select {
	case <-c.postReady:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	endpoint := c.postEndpoint
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header = c.headers.Clone()
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("companion POST failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (c *SSEClient) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.inbound:
		if !ok {
			select {
			case err := <-c.errCh:
				return nil, err
			default:
				return nil, transport.ErrClosed
			}
		}
		return msg, nil
	}
}

func (c *SSEClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancelStream()
	return nil
}

var _ transport.Transport = (*SSEClient)(nil)
