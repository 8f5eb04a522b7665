package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokenSource string

func (s staticTokenSource) Token(ctx context.Context) (string, error) { return string(s), nil }

func TestHTTPClientTransport_SendDirectJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Mcp-Session-Id", "sess-1")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{}}`)
	}))
	defer srv.Close()

	tr := NewHTTPClientTransport(HTTPClientConfig{
		URL:         srv.URL,
		TokenSource: staticTokenSource("secret-token"),
	})
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	assert.Equal(t, "sess-1", tr.SessionID())

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(msg))
}

func TestHTTPClientTransport_SendSSEResponseEnqueuesEachEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
	}))
	defer srv.Close()

	tr := NewHTTPClientTransport(HTTPClientConfig{URL: srv.URL})
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`)))

	first, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(first))

	second, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/progress"}`, string(second))
}

func TestHTTPClientTransport_SendAcceptedWithEmptyBodyIsNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewHTTPClientTransport(HTTPClientConfig{URL: srv.URL})
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClientTransport_SendNonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "unauthorized")
	}))
	defer srv.Close()

	tr := NewHTTPClientTransport(HTTPClientConfig{URL: srv.URL})
	defer tr.Close()

	err := tr.Send(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestHTTPClientTransport_CloseUnblocksReceive(t *testing.T) {
	tr := NewHTTPClientTransport(HTTPClientConfig{URL: "http://unused.invalid"})

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}
