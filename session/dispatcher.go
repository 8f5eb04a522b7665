package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// RequestHandler answers a Request, returning a JSON-marshalable result or
// an *protocol.RPCError to send back as an ErrorResponse.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError)

// NotificationHandler reacts to a Notification. Errors are logged by the
// caller, never sent back (notifications have no reply).
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// ErrorSink observes an inbound ErrorResponse whose id did not correlate to
// any call this side is tracking (e.g. a late duplicate from a misbehaving
// peer), keyed by RPCError code. Most dispatchers register none; it exists
// for diagnostics/metrics hooks.
type ErrorSink func(ctx context.Context, errResp *protocol.ErrorResponse)

// Dispatcher holds three method-keyed handler tables: requests,
// notifications, and error-code sinks. A registry lets server.go and
// client.go each register only the methods they actually serve instead of
// hard-coding a switch.
type Dispatcher struct {
	tracer        trace.Tracer
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
	errorSinks    map[int]ErrorSink
}

// NewDispatcher builds an empty Dispatcher. tracerName is used to obtain an
// OpenTelemetry tracer (e.g. "mcp-sdk-go/server" or "mcp-sdk-go/client");
// if the global TracerProvider is a no-op, spans are cheap no-ops too.
func NewDispatcher(tracerName string) *Dispatcher {
	return &Dispatcher{
		tracer:        otel.Tracer(tracerName),
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
		errorSinks:    make(map[int]ErrorSink),
	}
}

// HandleRequest registers h for method. Registering the same method twice
// is a setup-time error, caught here via panic since it can only happen
// from a programming mistake during wiring, never at runtime.
func (d *Dispatcher) HandleRequest(method string, h RequestHandler) {
	if _, exists := d.requests[method]; exists {
		panic(fmt.Sprintf("session: duplicate request handler for method %q", method))
	}
	d.requests[method] = h
}

// HandleNotification registers h for method.
func (d *Dispatcher) HandleNotification(method string, h NotificationHandler) {
	if _, exists := d.notifications[method]; exists {
		panic(fmt.Sprintf("session: duplicate notification handler for method %q", method))
	}
	d.notifications[method] = h
}

// HandleErrorCode registers a sink for ErrorResponses carrying the given
// RPCError code that the correlator could not match to a pending call.
func (d *Dispatcher) HandleErrorCode(code int, h ErrorSink) {
	d.errorSinks[code] = h
}

// Dispatch routes req to its registered handler and returns the Response or
// ErrorResponse to send back. A method with no registered handler yields
// MethodNotFound; a handler's returned *RPCError becomes an ErrorResponse.
// Each dispatch runs inside its own span named after the method, tagged
// with the request id and, for tools/call, the tool name.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) protocol.Message {
	ctx, span := d.tracer.Start(ctx, req.Method, trace.WithAttributes(
		attribute.String("mcp.request_id", req.ID.String()),
	))
	defer span.End()
	if req.Method == "tools/call" {
		if name, ok := toolNameFromParams(req.Params); ok {
			span.SetAttributes(attribute.String("mcp.tool_name", name))
		}
	}

	h, ok := d.requests[req.Method]
	if !ok {
		span.SetAttributes(attribute.Bool("mcp.error", true))
		return &protocol.ErrorResponse{ID: req.ID, Error: *protocol.ErrMethodNotFound(req.Method)}
	}

	result, rpcErr := h(ctx, req.Params)
	if rpcErr != nil {
		span.SetAttributes(attribute.Bool("mcp.error", true), attribute.Int("mcp.error_code", rpcErr.Code))
		return &protocol.ErrorResponse{ID: req.ID, Error: *rpcErr}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		span.SetAttributes(attribute.Bool("mcp.error", true))
		return &protocol.ErrorResponse{ID: req.ID, Error: *protocol.ErrInternalError(err.Error())}
	}
	return &protocol.Response{ID: req.ID, Result: raw}
}

// DispatchNotification routes notif to its registered handler, if any.
// Unrecognized notification methods are silently ignored —
// notifications have no reply channel to report MethodNotFound on.
func (d *Dispatcher) DispatchNotification(ctx context.Context, notif *protocol.Notification) error {
	h, ok := d.notifications[notif.Method]
	if !ok {
		return nil
	}
	ctx, span := d.tracer.Start(ctx, notif.Method)
	defer span.End()
	if err := h(ctx, notif.Params); err != nil {
		span.SetAttributes(attribute.Bool("mcp.error", true))
		return err
	}
	return nil
}

// DispatchErrorResponse routes an ErrorResponse that the correlator
// couldn't match to any pending call to the sink registered for its code,
// if any.
func (d *Dispatcher) DispatchErrorResponse(ctx context.Context, errResp *protocol.ErrorResponse) {
	if sink, ok := d.errorSinks[errResp.Error.Code]; ok {
		sink(ctx, errResp)
	}
}

func toolNameFromParams(params json.RawMessage) (string, bool) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return "", false
	}
	return p.Name, true
}
