package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

func TestDispatcher_RoutesToRegisteredHandler(t *testing.T) {
	d := NewDispatcher("test")
	d.HandleRequest("tools/list", func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
		return protocol.ListToolsResult{Tools: []protocol.Tool{{Name: "echo"}}}, nil
	})

	req := &protocol.Request{ID: protocol.NewIntID(1), Method: "tools/list"}
	msg := d.Dispatch(context.Background(), req)

	resp, ok := msg.(*protocol.Response)
	require.True(t, ok, "expected *protocol.Response, got %T", msg)
	var result protocol.ListToolsResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "echo", result.Tools[0].Name)
}

func TestDispatcher_UnknownMethodYieldsMethodNotFound(t *testing.T) {
	d := NewDispatcher("test")
	req := &protocol.Request{ID: protocol.NewIntID(1), Method: "bogus/method"}

	msg := d.Dispatch(context.Background(), req)

	errResp, ok := msg.(*protocol.ErrorResponse)
	require.True(t, ok, "expected *protocol.ErrorResponse, got %T", msg)
	assert.Equal(t, protocol.CodeMethodNotFound, errResp.Error.Code)
}

func TestDispatcher_HandlerErrorBecomesErrorResponse(t *testing.T) {
	d := NewDispatcher("test")
	d.HandleRequest("tools/call", func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
		return nil, protocol.ErrInvalidParams("missing field b")
	})

	req := &protocol.Request{ID: protocol.NewIntID(1), Method: "tools/call"}
	msg := d.Dispatch(context.Background(), req)

	errResp, ok := msg.(*protocol.ErrorResponse)
	require.True(t, ok, "expected *protocol.ErrorResponse, got %T", msg)
	assert.Equal(t, protocol.CodeInvalidParams, errResp.Error.Code)
	assert.Contains(t, errResp.Error.Message, "missing field b")
}

func TestDispatcher_DuplicateRequestRegistrationPanics(t *testing.T) {
	d := NewDispatcher("test")
	noop := func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) { return nil, nil }
	d.HandleRequest("ping", noop)

	assert.Panics(t, func() { d.HandleRequest("ping", noop) })
}

func TestDispatcher_UnknownNotificationIsSilentlyDropped(t *testing.T) {
	d := NewDispatcher("test")
	notif := &protocol.Notification{Method: "notifications/whatever"}
	assert.NoError(t, d.DispatchNotification(context.Background(), notif))
}

func TestDispatcher_NotificationHandlerInvoked(t *testing.T) {
	d := NewDispatcher("test")
	called := make(chan string, 1)
	d.HandleNotification("notifications/progress", func(ctx context.Context, params json.RawMessage) error {
		called <- string(params)
		return nil
	})

	notif := &protocol.Notification{Method: "notifications/progress", Params: json.RawMessage(`{"progress":1}`)}
	require.NoError(t, d.DispatchNotification(context.Background(), notif))
	assert.JSONEq(t, `{"progress":1}`, <-called)
}

func TestDispatcher_ErrorSinkInvokedForUncorrelatedError(t *testing.T) {
	d := NewDispatcher("test")
	sunk := make(chan int, 1)
	d.HandleErrorCode(protocol.CodeInternalError, func(ctx context.Context, errResp *protocol.ErrorResponse) {
		sunk <- errResp.Error.Code
	})

	d.DispatchErrorResponse(context.Background(), &protocol.ErrorResponse{
		Error: *protocol.ErrInternalError("boom"),
	})
	assert.Equal(t, protocol.CodeInternalError, <-sunk)
}
