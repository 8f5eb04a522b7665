package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

func TestCorrelator_CompleteDeliversResponse(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(1)
	require.NoError(t, c.Register(id, "tools/call"))

	go func() {
		c.Complete(&protocol.Response{ID: id, Result: []byte(`{"ok":true}`)})
	}()

	resp, err := c.Wait(context.Background(), id, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_FailDeliversRPCError(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(2)
	require.NoError(t, c.Register(id, "tools/call"))

	go func() {
		c.Fail(&protocol.ErrorResponse{ID: id, Error: *protocol.ErrMethodNotFound("bogus")})
	}()

	_, err := c.Wait(context.Background(), id, time.Second)
	require.Error(t, err)
	rpcErr, ok := err.(*protocol.RPCError)
	require.True(t, ok, "expected *protocol.RPCError, got %T", err)
	assert.Equal(t, protocol.CodeMethodNotFound, rpcErr.Code)
}

func TestCorrelator_RegisterDuplicateID(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(3)
	require.NoError(t, c.Register(id, "ping"))

	err := c.Register(id, "ping")
	require.Error(t, err)
	var dup *protocol.DuplicateIDError
	require.ErrorAs(t, err, &dup)
}

func TestCorrelator_TimeoutWhenNoReply(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(4)
	require.NoError(t, c.Register(id, "tools/call"))

	_, err := c.Wait(context.Background(), id, 10*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *protocol.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, c.Pending(), "slot must be freed after timeout")
}

func TestCorrelator_CancelResolvesWaiter(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(5)
	require.NoError(t, c.Register(id, "tools/call"))

	go func() {
		time.Sleep(5 * time.Millisecond)
		assert.True(t, c.Cancel(id, "user abort"))
	}()

	_, err := c.Wait(context.Background(), id, time.Second)
	require.Error(t, err)
	var cancelErr *protocol.CancelledError
	require.ErrorAs(t, err, &cancelErr)
	assert.Equal(t, "user abort", cancelErr.Reason)
}

func TestCorrelator_ContextCancellationFreesSlot(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(6)
	require.NoError(t, c.Register(id, "tools/call"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, id, time.Second)
	require.Error(t, err)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_DisconnectAllResolvesEveryWaiter(t *testing.T) {
	c := NewCorrelator()
	id1, id2 := protocol.NewIntID(7), protocol.NewIntID(8)
	require.NoError(t, c.Register(id1, "tools/list"))
	require.NoError(t, c.Register(id2, "prompts/list"))

	results := make(chan error, 2)
	go func() { _, err := c.Wait(context.Background(), id1, time.Second); results <- err }()
	go func() { _, err := c.Wait(context.Background(), id2, time.Second); results <- err }()

	time.Sleep(5 * time.Millisecond)
	c.DisconnectAll()

	for i := 0; i < 2; i++ {
		err := <-results
		require.Error(t, err)
		var discErr *protocol.DisconnectedError
		assert.ErrorAs(t, err, &discErr)
	}
}

func TestCorrelator_CompleteUnknownIDIsBenign(t *testing.T) {
	c := NewCorrelator()
	delivered := c.Complete(&protocol.Response{ID: protocol.NewIntID(99)})
	assert.False(t, delivered)
}

func TestCorrelator_ReuseIDAfterCompletion(t *testing.T) {
	c := NewCorrelator()
	id := protocol.NewIntID(1)
	require.NoError(t, c.Register(id, "ping"))
	c.Complete(&protocol.Response{ID: id, Result: []byte("{}")})

	// Same id may be registered again once its prior slot was resolved.
	require.NoError(t, c.Register(id, "ping"))
}
