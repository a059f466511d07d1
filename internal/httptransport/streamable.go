package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/yn-academia/mcp-proxy/internal/transport"
)

const sessionIDHeader = "Mcp-Session-Id"

// StreamableClient implements transport.Transport against the Streamable
// HTTP variant: every outbound frame is its own POST, whose response is
// either a single JSON message or an SSE stream of them; a session id issued
// by the server is echoed on subsequent requests.
type StreamableClient struct {
	httpClient *http.Client
	url        string
	headers    http.Header

	inbound chan json.RawMessage
	errCh   chan error

	mu        sync.Mutex
	sessionID string

	done      chan struct{}
	closeOnce sync.Once
}

// DialStreamable prepares a Streamable HTTP client transport. No network
// call is made until the first Send.
func DialStreamable(client *http.Client, rawURL string, headers http.Header) *StreamableClient {
	return &StreamableClient{
		httpClient: client,
		url:        rawURL,
		headers:    headers,
		inbound:    make(chan json.RawMessage, 64),
		errCh:      make(chan error, 1),
		done:       make(chan struct{}),
	}
}

func (c *StreamableClient) Send(ctx context.Context, frame json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header = c.headers.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	c.mu.Lock()
	sid := c.sessionID
	c.mu.Unlock()
	if sid != "" {
		req.Header.Set(sessionIDHeader, sid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}

	if newSID := resp.Header.Get(sessionIDHeader); newSID != "" {
		c.mu.Lock()
		c.sessionID = newSID
		c.mu.Unlock()
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("streamable POST failed with status %d: %s", resp.StatusCode, body)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/event-stream") {
		go c.drainSSEResponse(resp.Body)
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		c.deliver(json.RawMessage(body))
	}
	return nil
}

func (c *StreamableClient) drainSSEResponse(body io.ReadCloser) {
	defer body.Close()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		c.deliver(json.RawMessage([]byte(strings.Join(dataLines, "\n"))))
		dataLines = nil
	}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()
}

func (c *StreamableClient) deliver(msg json.RawMessage) {
	select {
	case c.inbound <- msg:
	case <-c.done:
	}
}

func (c *StreamableClient) Receive(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		select {
		case err := <-c.errCh:
			return nil, err
		default:
			return nil, transport.ErrClosed
		}
	case msg := <-c.inbound:
		return msg, nil
	}
}

func (c *StreamableClient) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

var _ transport.Transport = (*StreamableClient)(nil)
