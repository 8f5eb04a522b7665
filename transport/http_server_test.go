package transport

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServer_PostCreatesSessionAndInvokesOnSession(t *testing.T) {
	h := NewHTTPServer(nil)
	h.PostTimeout = 50 * time.Millisecond

	var created *HTTPServerSession
	h.OnSession = func(s *HTTPServerSession) { created = s }

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NotNil(t, created)
	assert.Equal(t, created.ID(), resp.Header.Get("Mcp-Session-Id"))
	// No reply was ever produced, so the handler falls back to 202 Accepted
	// once PostTimeout elapses.
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg, err := created.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, string(msg))
}

func TestHTTPServer_PostReturnsSynchronousReplyWhenAvailable(t *testing.T) {
	h := NewHTTPServer(nil)
	h.PostTimeout = time.Second
	h.OnSession = func(s *HTTPServerSession) {
		go func() {
			body, err := s.Receive(context.Background())
			require.NoError(t, err)
			require.Contains(t, string(body), "ping")
			require.NoError(t, s.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)))
		}()
	}

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHTTPServer_GetStreamsSessionOutboundAsSSE(t *testing.T) {
	h := NewHTTPServer(nil)

	sessionIDCh := make(chan string, 1)
	h.OnSession = func(s *HTTPServerSession) { sessionIDCh <- s.ID() }

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	postResp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	postResp.Body.Close()

	sessionID := <-sessionIDCh
	sess, ok := h.session(sessionID)
	require.True(t, ok)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", sessionID)

	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, "text/event-stream", getResp.Header.Get("Content-Type"))

	require.NoError(t, sess.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`)))

	scanner := bufio.NewScanner(getResp.Body)
	require.True(t, scanner.Scan())
	line := scanner.Text()
	assert.True(t, strings.HasPrefix(line, "data:"))
	assert.Contains(t, line, "notifications/progress")
}

func TestHTTPServer_GetUnknownSessionReturnsNotFound(t *testing.T) {
	h := NewHTTPServer(nil)
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", "does-not-exist")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPServer_DeleteClosesAndForgetsSession(t *testing.T) {
	h := NewHTTPServer(nil)
	sessionIDCh := make(chan string, 1)
	h.OnSession = func(s *HTTPServerSession) { sessionIDCh <- s.ID() }

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	postResp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	postResp.Body.Close()
	sessionID := <-sessionIDCh

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Mcp-Session-Id", sessionID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := h.session(sessionID)
	assert.False(t, ok)

	// Deleting again (or deleting an unknown session) is a 404.
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
