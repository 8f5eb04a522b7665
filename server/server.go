package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-mcp/mcp-sdk-go/internal/eventbus"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
	"github.com/lattice-mcp/mcp-sdk-go/session"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

// CompletionHandler resolves completion/complete for one ref kind (a
// prompt argument or a resource template variable).
type CompletionHandler func(ctx context.Context, args map[string]string) []string

// Options configures a Server.
type Options struct {
	Info         protocol.Implementation
	Instructions string
	Capabilities protocol.ServerCapabilities
}

// Server is the feature-provider side of one MCP session: it owns the
// registries, wires their built-in handlers onto a session.Dispatcher, and
// drives the listChanged coalescer. One Server can back many concurrent
// session.Sessions (e.g. one per HTTP connection) since it holds no
// per-connection state itself — registries are shared, sessions are not.
type Server struct {
	opts Options
	bus  *eventbus.Bus

	Tools     *ToolRegistry
	Prompts   *PromptRegistry
	Resources *ResourceRegistry

	completions map[string]CompletionHandler

	mu       sync.RWMutex
	minLevel protocol.LogLevel
}

// New builds a Server with empty registries, ready to have tools/prompts/
// resources registered before Serve is called.
func New(opts Options) *Server {
	bus := eventbus.NewBus()
	return &Server{
		opts:        opts,
		bus:         bus,
		Tools:       NewToolRegistry(bus, opts.Info.Name),
		Prompts:     NewPromptRegistry(bus, opts.Info.Name),
		Resources:   NewResourceRegistry(bus, opts.Info.Name),
		completions: make(map[string]CompletionHandler),
		minLevel:    protocol.LogInfo,
	}
}

// RegisterCompletion wires a completion/complete source, keyed by the same
// name a CompleteParams.Ref["name"] carries (a prompt name or resource
// template name).
func (s *Server) RegisterCompletion(refName string, handler CompletionHandler) {
	s.mu.Lock()
	s.completions[refName] = handler
	s.mu.Unlock()
}

// MinLogLevel returns the level most recently set via logging/setLevel
// (protocol.LogInfo until a client calls it).
func (s *Server) MinLogLevel() protocol.LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minLevel
}

// Bus exposes the server's event bus so callers (CLI, examples) can publish
// ErrorEvents or subscribe for their own purposes (e.g. a TUI status line).
func (s *Server) Bus() *eventbus.Bus { return s.bus }

// Serve runs one Session over t to completion, registering every built-in
// handler this Server provides. It blocks until the session ends (transport
// closed, ctx cancelled) and then stops that session's listChanged
// coalescer. Call Serve once per connection (stdio: once per process;
// HTTP: once per HTTPServerSession).
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	disp := session.NewDispatcher("mcp-server")
	sess := session.New(session.RoleServer, t, disp, nil)

	s.wireHandlers(disp, sess)

	coalescer := newListChangedCoalescer(s.bus, sess, s.opts.Capabilities, 50*time.Millisecond)
	defer coalescer.Stop()

	return sess.Run(ctx)
}

func (s *Server) wireHandlers(disp *session.Dispatcher, sess *session.Session) {
	disp.HandleRequest(protocol.MethodInitialize, s.handleInitialize(sess))
	disp.HandleRequest(protocol.MethodToolsList, s.handleToolsList)
	disp.HandleRequest(protocol.MethodToolsCall, s.handleToolsCall)
	disp.HandleRequest(protocol.MethodPromptsList, s.handlePromptsList)
	disp.HandleRequest(protocol.MethodPromptsGet, s.handlePromptsGet)
	disp.HandleRequest(protocol.MethodResourcesList, s.handleResourcesList)
	disp.HandleRequest(protocol.MethodResourceTemplatesList, s.handleResourceTemplatesList)
	disp.HandleRequest(protocol.MethodResourcesRead, s.handleResourcesRead)
	disp.HandleRequest(protocol.MethodResourcesSubscribe, s.handleResourcesSubscribe)
	disp.HandleRequest(protocol.MethodResourcesUnsubscribe, s.handleResourcesUnsubscribe)
	disp.HandleRequest(protocol.MethodCompletionComplete, s.handleComplete)
	disp.HandleRequest(protocol.MethodLoggingSetLevel, s.handleSetLevel)
}

func (s *Server) handleInitialize(sess *session.Session) session.RequestHandler {
	return func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
		var p protocol.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, protocol.ErrInvalidParams(err.Error())
		}
		sess.BeginServerHandshake(p.ClientInfo, p.Capabilities)
		return protocol.InitializeResult{
			ProtocolVersion: session.NegotiateServerVersion(p.ProtocolVersion),
			Capabilities:    s.opts.Capabilities,
			ServerInfo:      s.opts.Info,
			Instructions:    s.opts.Instructions,
		}, nil
	}
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	return protocol.ListToolsResult{Tools: s.Tools.List()}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	t, ok := s.Tools.get(p.Name)
	if !ok {
		return nil, protocol.ErrInvalidParams(fmt.Sprintf("unknown tool %q", p.Name))
	}
	if err := t.validate(p.Arguments); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}

	result, err := t.handler(ctx, p.Arguments)
	if err != nil {
		// Business-logic failure surfaces as CallToolResult{isError:true},
		// not an RPC-level error.
		return protocol.CallToolResult{
			Content: []protocol.Content{protocol.TextContent(err.Error())},
			IsError: true,
		}, nil
	}
	return result, nil
}

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	return protocol.ListPromptsResult{Prompts: s.Prompts.List()}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.GetPromptParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	prompt, ok := s.Prompts.get(p.Name)
	if !ok {
		return nil, protocol.ErrInvalidParams(fmt.Sprintf("unknown prompt %q", p.Name))
	}
	result, err := prompt.handler(ctx, p.Arguments)
	if err != nil {
		return nil, protocol.ErrInternalError(err.Error())
	}
	return result, nil
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	return protocol.ListResourcesResult{Resources: s.Resources.ListFixed()}, nil
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	return protocol.ListResourceTemplatesResult{ResourceTemplates: s.Resources.ListTemplates()}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	handler, vars, ok := s.Resources.resolve(p.URI)
	if !ok {
		return nil, protocol.ErrInvalidParams(fmt.Sprintf("unknown resource %q", p.URI))
	}
	result, err := handler(ctx, p.URI, vars)
	if err != nil {
		return nil, protocol.ErrInternalError(err.Error())
	}
	return result, nil
}

func (s *Server) handleResourcesSubscribe(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	if !s.opts.Capabilities.ResourcesSubscribe() {
		return nil, protocol.NewRPCError(protocol.CodeCapabilityError, "server did not advertise resources.subscribe", nil)
	}
	var p protocol.SubscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	s.Resources.Subscribe(p.URI)
	return struct{}{}, nil
}

func (s *Server) handleResourcesUnsubscribe(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.UnsubscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	s.Resources.Unsubscribe(p.URI)
	return struct{}{}, nil
}

func (s *Server) handleComplete(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.CompleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	name, _ := p.Ref["name"].(string)

	s.mu.RLock()
	handler, ok := s.completions[name]
	s.mu.RUnlock()
	if !ok {
		return protocol.CompleteResult{}, nil
	}

	values := handler(ctx, p.Argument)
	total := len(values)
	hasMore := total > protocol.MaxCompletionValues
	if hasMore {
		values = values[:protocol.MaxCompletionValues]
	}

	var result protocol.CompleteResult
	result.Completion.Values = values
	result.Completion.Total = total
	result.Completion.HasMore = hasMore
	return result, nil
}

func (s *Server) handleSetLevel(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
	var p protocol.SetLevelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	if !p.Level.Valid() {
		return nil, protocol.ErrInvalidParams(fmt.Sprintf("unknown log level %q", p.Level))
	}
	s.mu.Lock()
	s.minLevel = p.Level
	s.mu.Unlock()
	return struct{}{}, nil
}

func (s *Server) sendLogMessage(ctx context.Context, level protocol.LogLevel, logger string, data json.RawMessage) error {
	s.bus.Publish(eventbus.NewLogMessageEvent(s.opts.Info.Name, level, logger, data))
	return nil
}
