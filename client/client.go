// Package client is the consumer side of an MCP session: typed wrappers
// over session.Session's Call/Notify for every method in the external
// interface table, plus a Roots registry a server can query at any
// Operational time.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
	"github.com/lattice-mcp/mcp-sdk-go/session"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

// Options configures the client identity sent during initialize.
type Options struct {
	Info         protocol.Implementation
	Capabilities protocol.ClientCapabilities
}

// Client wraps a session.Session with typed request/response helpers. One
// Client talks to exactly one server connection; Roots (if set) answers
// that server's roots/list requests and emits list_changed on mutation.
type Client struct {
	opts    Options
	session *session.Session
	roots   *RootsRegistry
}

// New wraps t in a session.Session and registers the built-in
// server-initiated request handlers (roots/list) this client answers.
// New does not start Run; the caller starts Run in a goroutine and then
// calls Connect to run the handshake.
func New(opts Options, t transport.Transport) *Client {
	disp := session.NewDispatcher("mcp-client")
	sess := session.New(session.RoleClient, t, disp, nil)
	c := &Client{opts: opts, session: sess, roots: NewRootsRegistry()}

	disp.HandleRequest(protocol.MethodRootsList, func(ctx context.Context, params json.RawMessage) (any, *protocol.RPCError) {
		return protocol.ListRootsResult{Roots: c.roots.List()}, nil
	})

	return c
}

// Roots returns the client-side roots registry so callers can populate it
// before Connect (static roots) or mutate it afterward (dynamic roots,
// e.g. client/roots_watcher.go's fsnotify-driven updates).
func (c *Client) Roots() *RootsRegistry { return c.roots }

// Session exposes the underlying session.Session for callers that need
// direct Call/Notify access beyond this package's typed wrappers.
func (c *Client) Session() *session.Session { return c.session }

// Run drives the session's transport read loop; call it in a goroutine
// before Connect.
func (c *Client) Run(ctx context.Context) error {
	return c.session.Run(ctx)
}

// Connect performs the initialize handshake: sends initialize, validates
// the server's negotiated version, sends notifications/initialized, and
// leaves the session Operational. It returns the server's InitializeResult
// so the caller can inspect ServerInfo/Instructions/Capabilities.
func (c *Client) Connect(ctx context.Context) (*protocol.InitializeResult, error) {
	c.session.BeginClientHandshake()

	raw, err := c.session.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.LatestProtocolVersion,
		Capabilities:    c.opts.Capabilities,
		ClientInfo:      c.opts.Info,
	})
	if err != nil {
		return nil, fmt.Errorf("client: initialize: %w", err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("client: decode InitializeResult: %w", err)
	}
	if err := c.session.CompleteClientHandshake(&result); err != nil {
		return nil, err
	}
	if err := c.session.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("client: notifications/initialized: %w", err)
	}
	c.session.FinishClientHandshake()

	if c.opts.Capabilities.Roots != nil && c.opts.Capabilities.Roots.ListChanged {
		c.roots.OnChange(func() {
			_ = c.session.Notify(context.Background(), protocol.MethodNotifyRootsChanged, nil)
		})
	}
	return &result, nil
}

// Close ends the session and its transport.
func (c *Client) Close() error {
	return c.session.Close()
}

// requiredServerCapability names the top-level server capability (as
// ServerCapabilities.Has expects it, or "resources.subscribe" as a special
// case) a client must see advertised before invoking method. Returns "" for
// methods no capability gates (initialize, ping, notifications/*).
func requiredServerCapability(method string) string {
	switch method {
	case protocol.MethodToolsList, protocol.MethodToolsCall:
		return "tools"
	case protocol.MethodPromptsList, protocol.MethodPromptsGet:
		return "prompts"
	case protocol.MethodResourcesList, protocol.MethodResourceTemplatesList, protocol.MethodResourcesRead:
		return "resources"
	case protocol.MethodResourcesSubscribe, protocol.MethodResourcesUnsubscribe:
		return "resources.subscribe"
	case protocol.MethodCompletionComplete:
		return "completions"
	case protocol.MethodLoggingSetLevel:
		return "logging"
	default:
		return ""
	}
}

// checkCapability returns a *protocol.CapabilityError, without sending
// anything, if method requires a server capability the peer never
// advertised during initialize. Calling a method the peer doesn't support
// is a local programming error, not something that should round-trip over
// the wire.
func (c *Client) checkCapability(method string) error {
	capability := requiredServerCapability(method)
	if capability == "" {
		return nil
	}
	caps := c.session.PeerServerCapabilities()
	var advertised bool
	if capability == "resources.subscribe" {
		advertised = caps.ResourcesSubscribe()
	} else {
		advertised = caps.Has(capability)
	}
	if !advertised {
		return &protocol.CapabilityError{Side: "server", Capability: capability, Method: method}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if err := c.checkCapability(method); err != nil {
		return err
	}
	raw, err := c.session.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ListTools returns the server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var result protocol.ListToolsResult
	if err := c.call(ctx, protocol.MethodToolsList, protocol.ListToolsParams{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns its result verbatim, including
// IsError (a tool business-logic failure, not an RPC error).
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	var result protocol.CallToolResult
	if err := c.call(ctx, protocol.MethodToolsCall, protocol.CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts returns the server's advertised prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	var result protocol.ListPromptsResult
	if err := c.call(ctx, protocol.MethodPromptsList, protocol.ListPromptsParams{}, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// GetPrompt resolves a prompt's rendered messages.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	var result protocol.GetPromptResult
	if err := c.call(ctx, protocol.MethodPromptsGet, protocol.GetPromptParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListResources returns the server's fixed resources.
func (c *Client) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	var result protocol.ListResourcesResult
	if err := c.call(ctx, protocol.MethodResourcesList, protocol.ListResourcesParams{}, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ListResourceTemplates returns the server's RFC 6570 templated resources.
func (c *Client) ListResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error) {
	var result protocol.ListResourceTemplatesResult
	if err := c.call(ctx, protocol.MethodResourceTemplatesList, nil, &result); err != nil {
		return nil, err
	}
	return result.ResourceTemplates, nil
}

// ReadResource fetches a resource's contents by URI (fixed or a
// template-expanded concrete URI).
func (c *Client) ReadResource(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
	var result protocol.ReadResourceResult
	if err := c.call(ctx, protocol.MethodResourcesRead, protocol.ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// Subscribe asks the server to notify this client of changes to uri via
// notifications/resources/updated.
func (c *Client) Subscribe(ctx context.Context, uri string) error {
	return c.call(ctx, protocol.MethodResourcesSubscribe, protocol.SubscribeParams{URI: uri}, nil)
}

// Unsubscribe cancels a prior Subscribe.
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	return c.call(ctx, protocol.MethodResourcesUnsubscribe, protocol.UnsubscribeParams{URI: uri}, nil)
}

// Complete asks the server for completion suggestions for a prompt
// argument or resource template variable.
func (c *Client) Complete(ctx context.Context, ref map[string]any, argument map[string]string) (*protocol.CompleteResult, error) {
	var result protocol.CompleteResult
	if err := c.call(ctx, protocol.MethodCompletionComplete, protocol.CompleteParams{Ref: ref, Argument: argument}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetLogLevel asks the server to only forward notifications/message
// records at or above level.
func (c *Client) SetLogLevel(ctx context.Context, level protocol.LogLevel) error {
	return c.call(ctx, protocol.MethodLoggingSetLevel, protocol.SetLevelParams{Level: level}, nil)
}

// OnResourceUpdated registers a callback invoked for every
// notifications/resources/updated this client receives.
func (c *Client) OnResourceUpdated(fn func(uri string)) {
	c.session.Dispatcher().HandleNotification(protocol.MethodNotifyResourceUpdated, func(ctx context.Context, params json.RawMessage) error {
		var p protocol.ResourceUpdatedParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		fn(p.URI)
		return nil
	})
}

// OnLogMessage registers a callback invoked for every
// notifications/message this client receives. Call at most once, before
// Run — like every Dispatcher registration, it is a setup-time operation.
func (c *Client) OnLogMessage(fn func(protocol.LogMessageParams)) {
	c.session.Dispatcher().HandleNotification(protocol.MethodNotifyMessage, func(ctx context.Context, params json.RawMessage) error {
		var p protocol.LogMessageParams
		if err := json.Unmarshal(params, &p); err != nil {
			return err
		}
		fn(p)
		return nil
	})
}
