package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/lattice-mcp/mcp-sdk-go/auth"
)

// HTTPClientConfig configures an HTTPClientTransport.
type HTTPClientConfig struct {
	// URL is the MCP endpoint, e.g. "https://example.com/mcp".
	URL string
	// TokenSource resolves a bearer token for each request; nil means no
	// Authorization header is sent.
	TokenSource auth.TokenSource
	// Headers are static headers added to every request.
	Headers map[string]string
	// Client is the underlying http.Client; nil uses http.DefaultClient.
	Client *http.Client
	Logger *slog.Logger
}

// HTTPClientTransport implements Transport as a Streamable HTTP client:
// POST carries outbound messages, and the server may reply either with a
// direct application/json body or a text/event-stream body whose "data:"
// lines are each one JSON-RPC message. The legacy HTTP+SSE "endpoint
// event" dance and per-request version re-negotiation fallback are
// dropped; a single negotiated version is assumed once initialize
// succeeds.
type HTTPClientTransport struct {
	cfg    HTTPClientConfig
	client *http.Client
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
	closed    bool

	msgQueue chan []byte
	done     chan struct{}
}

// NewHTTPClientTransport builds a client-side Streamable HTTP transport.
func NewHTTPClientTransport(cfg HTTPClientConfig) *HTTPClientTransport {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPClientTransport{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		msgQueue: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// SessionID returns the server-assigned Mcp-Session-Id, if one has been
// received yet.
func (t *HTTPClientTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Send POSTs msg to the configured URL and, for a synchronous JSON
// response, queues the body for Receive; for an SSE response, queues
// every "data:" event as it arrives.
func (t *HTTPClientTransport) Send(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport: http client transport closed")
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	if t.cfg.TokenSource != nil {
		token, err := t.cfg.TokenSource.Token(ctx)
		if err != nil {
			return fmt.Errorf("transport: resolve bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	t.logger.Debug("http send", "bytes", len(msg))
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: send request: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("transport: request failed: %s: %s", resp.Status, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		return t.drainSSE(ctx, resp.Body)
	case strings.HasPrefix(contentType, "application/json"):
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("transport: read response: %w", err)
		}
		if len(data) == 0 {
			return nil // 202 Accepted with no body: a notification or a request answered asynchronously
		}
		return t.enqueue(ctx, data)
	default:
		return nil
	}
}

func (t *HTTPClientTransport) drainSSE(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if err := t.enqueue(ctx, append([]byte(nil), data.Bytes()...)); err != nil {
					return err
				}
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (t *HTTPClientTransport) enqueue(ctx context.Context, data []byte) error {
	select {
	case t.msgQueue <- data:
		return nil
	case <-t.done:
		return errors.New("transport: http client transport closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next queued message, however it arrived (direct
// JSON response body, or one SSE event).
func (t *HTTPClientTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.msgQueue:
		return msg, nil
	case <-t.done:
		return nil, errors.New("transport: http client transport closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the transport closed and unblocks any pending Receive.
func (t *HTTPClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}
