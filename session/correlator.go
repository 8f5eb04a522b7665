// Package session implements the MCP handshake state machine, request/
// response correlation, and method dispatch that sit between the wire
// codec (package jsonrpc) and a transport (package transport). Many
// requests may be outstanding concurrently on a single session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// pendingCall is one outstanding request awaiting a reply.
type pendingCall struct {
	method string
	done   chan outcome
	once   sync.Once
}

// outcome is what a pendingCall resolves to: exactly one of result, rpcErr,
// or terminal is set.
type outcome struct {
	result   *protocol.Response
	rpcErr   *protocol.ErrorResponse
	terminal error // TimeoutError, CancelledError, or DisconnectedError
}

// Correlator matches outbound requests to their inbound Response or
// ErrorResponse by id. It is safe for concurrent use: many goroutines may
// Register and Complete at once.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewCorrelator builds an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]*pendingCall)}
}

// Register records that a request with the given id is in flight. It
// returns a *protocol.DuplicateIDError if id is already pending — callers
// must pick ids that are not currently outstanding (Session's monotonic
// request-id counter guarantees this; a caller that supplies its own ids
// must check this error).
func (c *Correlator) Register(id protocol.ID, method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := id.String()
	if _, exists := c.pending[key]; exists {
		return &protocol.DuplicateIDError{ID: id}
	}
	c.pending[key] = &pendingCall{method: method, done: make(chan outcome, 1)}
	return nil
}

// Wait blocks until the response for id arrives, ctx is cancelled, or
// deadline elapses (zero deadline means no timeout beyond ctx). It must be
// called after a successful Register for the same id.
func (c *Correlator) Wait(ctx context.Context, id protocol.ID, deadline time.Duration) (*protocol.Response, error) {
	c.mu.Lock()
	pc, ok := c.pending[id.String()]
	c.mu.Unlock()
	if !ok {
		return nil, &protocol.DisconnectedError{Method: ""}
	}

	var timeoutCh <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case o := <-pc.done:
		return c.resolve(o)
	case <-ctx.Done():
		c.remove(id)
		return nil, &protocol.CancelledError{Method: pc.method, Reason: ctx.Err().Error()}
	case <-timeoutCh:
		c.remove(id)
		return nil, &protocol.TimeoutError{Method: pc.method}
	}
}

func (c *Correlator) resolve(o outcome) (*protocol.Response, error) {
	if o.terminal != nil {
		return nil, o.terminal
	}
	if o.rpcErr != nil {
		return nil, &o.rpcErr.Error
	}
	return o.result, nil
}

// Complete delivers a successful Response to the waiter registered under
// resp.ID. It reports false if no such registration exists (a late or
// duplicate reply from a misbehaving peer).
func (c *Correlator) Complete(resp *protocol.Response) bool {
	return c.deliver(resp.ID, outcome{result: resp})
}

// Fail delivers an ErrorResponse to the waiter registered under errResp.ID.
func (c *Correlator) Fail(errResp *protocol.ErrorResponse) bool {
	return c.deliver(errResp.ID, outcome{rpcErr: errResp})
}

// Cancel resolves the waiter for id with a CancelledError. It is the local
// cancellation path (Session.CancelOutbound, and Session.Call after an
// encode or send failure); it sends nothing to the peer. It reports false
// if id is not pending.
func (c *Correlator) Cancel(id protocol.ID, reason string) bool {
	c.mu.Lock()
	pc, ok := c.pending[id.String()]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.deliver(id, outcome{terminal: &protocol.CancelledError{Method: pc.method, Reason: reason}})
}

// DisconnectAll resolves every pending call with a DisconnectedError. Call
// this when the underlying transport closes so no waiter blocks forever.
func (c *Correlator) DisconnectAll() {
	c.mu.Lock()
	all := make([]*pendingCall, 0, len(c.pending))
	ids := make([]string, 0, len(c.pending))
	for k, pc := range c.pending {
		all = append(all, pc)
		ids = append(ids, k)
	}
	for _, k := range ids {
		delete(c.pending, k)
	}
	c.mu.Unlock()

	for _, pc := range all {
		pc.once.Do(func() {
			pc.done <- outcome{terminal: &protocol.DisconnectedError{Method: pc.method}}
		})
	}
}

// Pending reports how many requests are currently outstanding.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) deliver(id protocol.ID, o outcome) bool {
	c.mu.Lock()
	pc, ok := c.pending[id.String()]
	if ok {
		delete(c.pending, id.String())
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	pc.once.Do(func() { pc.done <- o })
	return true
}

func (c *Correlator) remove(id protocol.ID) {
	c.mu.Lock()
	delete(c.pending, id.String())
	c.mu.Unlock()
}
