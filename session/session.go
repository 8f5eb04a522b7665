package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lattice-mcp/mcp-sdk-go/jsonrpc"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

// DefaultRequestTimeout is how long Session.Call waits for a reply absent
// a context deadline. The teacher's Client.call (internal/mcp/client.go)
// has no per-call timeout of its own and instead relies on the caller's
// ctx; DefaultTimeout there (30s) is reused here as the fallback when the
// caller supplies a bare context.Background().
const DefaultRequestTimeout = 30 * time.Second

// Session is one JSON-RPC connection's state machine: it owns
// the Correlator and Dispatcher, drives the Transport's read loop, and
// exposes Call/Notify for the outbound path. Session itself is
// transport-, role-, and feature-registry-agnostic; server.Server and
// client.Client each embed one and register their own handlers on its
// Dispatcher.
type Session struct {
	role      Role
	transport transport.Transport
	dispatch  *Dispatcher
	corr      *Correlator
	logger    *slog.Logger

	mu                sync.RWMutex
	state             State
	negotiatedVersion string
	peerServerCaps    protocol.ServerCapabilities
	peerClientCaps    protocol.ClientCapabilities
	peerInfo          protocol.Implementation
	instructions      string

	nextID atomic.Int64

	cancelFuncs sync.Map // map[string]context.CancelFunc, keyed by inbound request id, for notifications/cancelled
}

// New builds a Session in state Created, wrapping t and dispatching
// through d. The caller should call Run in a goroutine once the
// transport is connected.
func New(role Role, t transport.Transport, d *Dispatcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		role:      role,
		transport: t,
		dispatch:  d,
		corr:      NewCorrelator(),
		logger:    logger,
		state:     StateCreated,
	}
}

// Dispatcher exposes the session's Dispatcher so server/client packages can
// register their handlers on it.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatch }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// NegotiatedVersion returns the protocol version agreed during the
// handshake, or "" before that completes.
func (s *Session) NegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedVersion
}

// PeerInfo returns the peer's advertised implementation name/version,
// valid once the handshake completes.
func (s *Session) PeerInfo() protocol.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerInfo
}

// Instructions returns the server-provided instructions string from
// InitializeResult (client side only; empty on the server side).
func (s *Session) Instructions() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instructions
}

// PeerServerCapabilities returns the capabilities the server advertised in
// InitializeResult. Valid on the client side once CompleteClientHandshake
// has run; the zero value otherwise.
func (s *Session) PeerServerCapabilities() protocol.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerServerCaps
}

// PeerClientCapabilities returns the capabilities the client advertised in
// its initialize request. Valid on the server side once BeginServerHandshake
// has run; the zero value otherwise.
func (s *Session) PeerClientCapabilities() protocol.ClientCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerClientCaps
}

// Run transitions to Connecting and drives the transport's read loop
// until ctx is done or the transport errors, at which point the session
// moves to Failed (or Closed, if Close was called first) and every
// outstanding Call unblocks with a DisconnectedError.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCreated {
		s.state = StateConnecting
	}
	s.mu.Unlock()
	defer s.corr.DisconnectAll()

	for {
		raw, err := s.transport.Receive(ctx)
		if err != nil {
			if s.State() == StateClosed {
				return nil
			}
			s.setState(StateFailed)
			return fmt.Errorf("session: transport receive: %w", err)
		}
		s.handleFrame(ctx, raw)
	}
}

func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	msg, err := jsonrpc.Decode(raw)
	if err != nil {
		s.logger.Warn("session: dropping unparseable frame", "error", err)
		if perr, ok := err.(*jsonrpc.ParseError); ok {
			s.send(&protocol.ErrorResponse{Error: *perr.RPCError()})
		}
		return
	}

	switch m := msg.(type) {
	case *protocol.Request:
		go s.handleInboundRequest(ctx, m)
	case *protocol.Notification:
		s.handleInboundNotification(ctx, m)
	case *protocol.Response:
		s.corr.Complete(m)
	case *protocol.ErrorResponse:
		if !s.corr.Fail(m) {
			s.dispatch.DispatchErrorResponse(ctx, m)
		}
	}
}

func (s *Session) handleInboundRequest(ctx context.Context, req *protocol.Request) {
	if !RequestAllowed(s.State(), req.Method) {
		s.send(&protocol.ErrorResponse{ID: req.ID, Error: *protocol.ErrInvalidRequest(
			fmt.Sprintf("method %q not permitted before the session is operational", req.Method))})
		return
	}

	if req.Method == "ping" {
		s.send(&protocol.Response{ID: req.ID, Result: json.RawMessage("{}")})
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	if !req.ID.IsZero() {
		s.cancelFuncs.Store(req.ID.String(), cancel)
		defer s.cancelFuncs.Delete(req.ID.String())
	}
	defer cancel()

	reply := s.dispatch.Dispatch(reqCtx, req)
	s.send(reply)
}

func (s *Session) handleInboundNotification(ctx context.Context, notif *protocol.Notification) {
	if !NotificationAllowed(s.State(), notif.Method) {
		s.logger.Warn("session: dropping notification before operational", "method", notif.Method)
		return
	}

	if notif.Method == "notifications/initialized" {
		if s.State() == StateAwaitingInitialized {
			s.setState(StateOperational)
		}
		return
	}

	if notif.Method == "notifications/cancelled" {
		var p protocol.CancelledParams
		if err := json.Unmarshal(notif.Params, &p); err == nil {
			if cancel, ok := s.cancelFuncs.Load(p.RequestID.String()); ok {
				cancel.(context.CancelFunc)()
			}
		}
		return
	}

	if err := s.dispatch.DispatchNotification(ctx, notif); err != nil {
		s.logger.Error("session: notification handler failed", "method", notif.Method, "error", err)
	}
}

// nextRequestID returns a process-unique integer id for this session's
// outbound requests.
func (s *Session) nextRequestID() protocol.ID {
	return protocol.NewIntID(s.nextID.Add(1))
}

// Call sends a request and blocks for its Response/ErrorResponse, subject
// to ctx and DefaultRequestTimeout (a context with its own deadline takes
// precedence). The "initialize" method skips this deadline entirely — the
// handshake request is the one call which cannot be locally cancelled or
// timed out by this layer.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextRequestID()
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	if err := s.corr.Register(id, method); err != nil {
		return nil, err
	}

	req := &protocol.Request{ID: id, Method: method, Params: raw}
	data, err := jsonrpc.Encode(req)
	if err != nil {
		s.corr.Cancel(id, "encode failure")
		return nil, fmt.Errorf("session: encode request: %w", err)
	}
	if err := s.transport.Send(ctx, data); err != nil {
		s.corr.Cancel(id, "send failure")
		return nil, fmt.Errorf("session: send request: %w", err)
	}

	deadline := DefaultRequestTimeout
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		deadline = 0 // the caller's own deadline takes precedence
	}
	if method == "initialize" {
		deadline = 0 // bounded only by ctx, which the caller controls
	}
	resp, err := s.corr.Wait(ctx, id, deadline)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Notify sends a one-way notification.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	data, err := jsonrpc.Encode(&protocol.Notification{Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("session: encode notification: %w", err)
	}
	return s.transport.Send(ctx, data)
}

// CancelOutbound implements the correlator's local-cancellation path: it
// notifies the peer with notifications/cancelled and resolves the local
// waiter with CancelledError. initialize is exempt.
func (s *Session) CancelOutbound(ctx context.Context, id protocol.ID, reason string) error {
	s.corr.mu.Lock()
	pc, pending := s.corr.pending[id.String()]
	s.corr.mu.Unlock()
	if pending && pc.method == "initialize" {
		return fmt.Errorf("session: the initialize request cannot be cancelled")
	}
	if !s.corr.Cancel(id, reason) {
		return nil // already resolved or unknown id; benign
	}
	return s.Notify(ctx, "notifications/cancelled", &protocol.CancelledParams{RequestID: id, Reason: reason})
}

func (s *Session) send(msg protocol.Message) {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		s.logger.Error("session: encode outbound message failed", "error", err)
		return
	}
	if err := s.transport.Send(context.Background(), data); err != nil {
		s.logger.Error("session: send outbound message failed", "error", err)
	}
}

// Close transitions to Closed and closes the underlying transport.
func (s *Session) Close() error {
	s.setState(StateClosed)
	return s.transport.Close()
}

// BeginClientHandshake transitions Created/Connecting -> AwaitingInitResponse,
// used by client.Client before sending the initialize request.
func (s *Session) BeginClientHandshake() {
	s.setState(StateAwaitingInitResponse)
}

// CompleteClientHandshake records the negotiated version and peer info
// after a successful InitializeResult, transitioning to
// AwaitingInitializedNotify, or to Failed if the server's chosen version
// is one this side does not support.
func (s *Session) CompleteClientHandshake(result *protocol.InitializeResult) error {
	if !protocol.VersionSupported(result.ProtocolVersion) {
		s.setState(StateFailed)
		return fmt.Errorf("session: server negotiated unsupported protocol version %q", result.ProtocolVersion)
	}
	s.mu.Lock()
	s.negotiatedVersion = result.ProtocolVersion
	s.peerInfo = result.ServerInfo
	s.instructions = result.Instructions
	s.peerServerCaps = result.Capabilities
	s.mu.Unlock()
	s.setState(StateAwaitingInitializedNotify)
	return nil
}

// FinishClientHandshake transitions AwaitingInitializedNotify -> Operational
// after the client has sent notifications/initialized.
func (s *Session) FinishClientHandshake() {
	s.setState(StateOperational)
}

// BeginServerHandshake transitions Connecting -> AwaitingInitialized on
// receipt of the client's initialize request, and records the client's
// implementation info and advertised capabilities.
func (s *Session) BeginServerHandshake(info protocol.Implementation, caps protocol.ClientCapabilities) {
	s.mu.Lock()
	s.peerInfo = info
	s.peerClientCaps = caps
	s.mu.Unlock()
	s.setState(StateAwaitingInitialized)
}

// NegotiateServerVersion picks the protocol version to advertise in
// InitializeResult: the client's requested version if supported, else the
// latest this side supports (letting the client fail the handshake on its
// own side if it can't follow along).
func NegotiateServerVersion(requested string) string {
	if protocol.VersionSupported(requested) {
		return requested
	}
	return protocol.LatestProtocolVersion
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("session: marshal params: %w", err)
	}
	return b, nil
}
