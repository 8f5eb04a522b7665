// Package server implements the feature-provider side of an MCP session:
// registries for tools, prompts, and resources, the built-in request
// handlers that serve them, and listChanged/notify_updated coalescing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"github.com/yosida95/uritemplate/v3"

	"github.com/lattice-mcp/mcp-sdk-go/internal/eventbus"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// ToolHandler implements one tool's business logic. args is the raw
// "arguments" object from tools/call, already schema-validated against the
// tool's InputSchema before the handler runs.
type ToolHandler func(ctx context.Context, args json.RawMessage) (protocol.CallToolResult, error)

// registeredTool pairs a Tool's wire description with its handler and a
// compiled JSON schema validator for its input.
type registeredTool struct {
	tool    protocol.Tool
	handler ToolHandler
	schema  *gojsonschema.Schema
}

// ToolRegistry holds the tools a server exposes via tools/list and
// tools/call, publishing a RegistryChangedEvent on every mutation so
// listChangedCoalescer can fold bursts into one notifications/tools/list_changed.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	bus   *eventbus.Bus
	src   string
}

// NewToolRegistry builds an empty registry. bus/src may be nil/"" if the
// caller doesn't need listChanged coalescing (e.g. in isolated unit tests).
func NewToolRegistry(bus *eventbus.Bus, source string) *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*registeredTool), bus: bus, src: source}
}

// Register adds or replaces a tool. inputSchema is a JSON Schema document;
// a malformed schema is a programming error surfaced immediately rather
// than deferred to the first tools/call.
func (r *ToolRegistry) Register(tool protocol.Tool, handler ToolHandler) error {
	var schema *gojsonschema.Schema
	if len(tool.InputSchema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
		if err != nil {
			return fmt.Errorf("server: tool %q has invalid input schema: %w", tool.Name, err)
		}
		schema = s
	}

	r.mu.Lock()
	r.tools[tool.Name] = &registeredTool{tool: tool, handler: handler, schema: schema}
	r.mu.Unlock()
	r.publish()
	return nil
}

// Unregister removes a tool by name. Reports whether it existed.
func (r *ToolRegistry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	r.mu.Unlock()
	if ok {
		r.publish()
	}
	return ok
}

func (r *ToolRegistry) publish() {
	if r.bus != nil {
		r.bus.Publish(eventbus.NewToolsChangedEvent(r.src))
	}
}

// List returns every registered tool's wire description, sorted by name for
// deterministic listing across calls.
func (r *ToolRegistry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.tool)
	}
	sortTools(out)
	return out
}

func (r *ToolRegistry) get(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// validate checks args against the tool's input schema, if one is set,
// returning a human-readable field-path error on the first violation.
func (t *registeredTool) validate(args []byte) error {
	if t.schema == nil {
		return nil
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		return fmt.Errorf("%s", errs[0].String())
	}
	return nil
}

func sortTools(tools []protocol.Tool) {
	for i := 1; i < len(tools); i++ {
		for j := i; j > 0 && tools[j].Name < tools[j-1].Name; j-- {
			tools[j], tools[j-1] = tools[j-1], tools[j]
		}
	}
}

// PromptHandler resolves a prompt's argument set into the rendered messages
// sent back in GetPromptResult.
type PromptHandler func(ctx context.Context, args map[string]string) (protocol.GetPromptResult, error)

type registeredPrompt struct {
	prompt  protocol.Prompt
	handler PromptHandler
}

// PromptRegistry holds the prompts exposed via prompts/list and prompts/get.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*registeredPrompt
	bus     *eventbus.Bus
	src     string
}

func NewPromptRegistry(bus *eventbus.Bus, source string) *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*registeredPrompt), bus: bus, src: source}
}

func (r *PromptRegistry) Register(prompt protocol.Prompt, handler PromptHandler) {
	r.mu.Lock()
	r.prompts[prompt.Name] = &registeredPrompt{prompt: prompt, handler: handler}
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish(eventbus.NewPromptsChangedEvent(r.src))
	}
}

func (r *PromptRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.prompts, name)
	r.mu.Unlock()
	if r.bus != nil {
		r.bus.Publish(eventbus.NewPromptsChangedEvent(r.src))
	}
}

func (r *PromptRegistry) List() []protocol.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p.prompt)
	}
	return out
}

func (r *PromptRegistry) get(name string) (*registeredPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// ResourceHandler reads a fixed or expanded-template resource's contents.
// vars holds the template's matched path variables (nil for a fixed
// resource, an empty map for a template with no variables in the request
// URI).
type ResourceHandler func(ctx context.Context, uri string, vars map[string]string) (protocol.ReadResourceResult, error)

type registeredResource struct {
	resource protocol.Resource
	handler  ResourceHandler
}

type registeredTemplate struct {
	template protocol.ResourceTemplate
	matcher  *uritemplate.Template
	handler  ResourceHandler
}

// ResourceRegistry holds fixed resources, RFC 6570 URI-templated resources,
// and the set of URIs with an active subscription.
type ResourceRegistry struct {
	mu        sync.RWMutex
	fixed     map[string]*registeredResource
	templates []*registeredTemplate
	subs      map[string]bool
	bus       *eventbus.Bus
	src       string
}

func NewResourceRegistry(bus *eventbus.Bus, source string) *ResourceRegistry {
	return &ResourceRegistry{
		fixed: make(map[string]*registeredResource),
		subs:  make(map[string]bool),
		bus:   bus,
		src:   source,
	}
}

func (r *ResourceRegistry) RegisterFixed(res protocol.Resource, handler ResourceHandler) {
	r.mu.Lock()
	r.fixed[res.URI] = &registeredResource{resource: res, handler: handler}
	r.mu.Unlock()
	r.publishChanged()
}

// RegisterTemplate adds an RFC 6570 templated resource; handler receives
// the concrete expanded URI a client requested via resources/read.
func (r *ResourceRegistry) RegisterTemplate(tmpl protocol.ResourceTemplate, handler ResourceHandler) error {
	parsed, err := uritemplate.New(tmpl.URITemplate)
	if err != nil {
		return fmt.Errorf("server: resource template %q: %w", tmpl.URITemplate, err)
	}
	r.mu.Lock()
	r.templates = append(r.templates, &registeredTemplate{template: tmpl, matcher: parsed, handler: handler})
	r.mu.Unlock()
	r.publishChanged()
	return nil
}

func (r *ResourceRegistry) publishChanged() {
	if r.bus != nil {
		r.bus.Publish(eventbus.NewResourcesChangedEvent(r.src))
	}
}

func (r *ResourceRegistry) ListFixed() []protocol.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Resource, 0, len(r.fixed))
	for _, res := range r.fixed {
		out = append(out, res.resource)
	}
	return out
}

func (r *ResourceRegistry) ListTemplates() []protocol.ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ResourceTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.template)
	}
	return out
}

// resolve finds the handler for uri, trying fixed resources first and then
// each template in registration order. For a template match it also
// returns the variables RFC 6570 extracted from uri, so the handler
// doesn't have to re-parse them out of the URI itself.
func (r *ResourceRegistry) resolve(uri string) (ResourceHandler, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fixed, ok := r.fixed[uri]; ok {
		return fixed.handler, nil, true
	}
	for _, t := range r.templates {
		if values, err := t.matcher.Match(uri); err == nil {
			vars := make(map[string]string, len(values))
			for name, v := range values {
				vars[name] = v.String()
			}
			return t.handler, vars, true
		}
	}
	return nil, nil, false
}

// Subscribe/Unsubscribe track per-URI subscription state gated by the
// resources.subscribe capability at the handler layer; the registry itself
// just remembers which URIs are currently subscribed.
func (r *ResourceRegistry) Subscribe(uri string) {
	r.mu.Lock()
	r.subs[uri] = true
	r.mu.Unlock()
}

func (r *ResourceRegistry) Unsubscribe(uri string) {
	r.mu.Lock()
	delete(r.subs, uri)
	r.mu.Unlock()
}

func (r *ResourceRegistry) Subscribed(uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[uri]
}

// NotifyUpdated publishes a ResourceUpdatedEvent for uri if it is
// currently subscribed; the server's listChanged coalescer turns this into
// a notifications/resources/updated. Benign no-op if nobody subscribed.
func (r *ResourceRegistry) NotifyUpdated(uri string) {
	if !r.Subscribed(uri) {
		return
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.NewResourceUpdatedEvent(r.src, uri))
	}
}
