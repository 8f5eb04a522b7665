// Package eventbus is the in-process publish/subscribe bus that lets
// registry mutations and transport-level occurrences reach listeners
// (the listChanged coalescer in server) without those packages importing each other directly. Adapted from the
// teacher's internal/events (Bigsy-mcpmu), whose Bus/Handler/Event shape is
// unchanged; the event catalogue itself is redrawn for this protocol
// engine's domain (registry mutations and log forwarding) in place of the
// teacher's server-process-lifecycle events.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// EventType identifies the kind of event flowing through a Bus.
type EventType int

const (
	EventToolsChanged EventType = iota
	EventPromptsChanged
	EventResourcesChanged
	EventRootsChanged
	EventResourceUpdated
	EventLogMessage
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventToolsChanged:
		return "tools_changed"
	case EventPromptsChanged:
		return "prompts_changed"
	case EventResourcesChanged:
		return "resources_changed"
	case EventRootsChanged:
		return "roots_changed"
	case EventResourceUpdated:
		return "resource_updated"
	case EventLogMessage:
		return "log_message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the interface every value published on a Bus satisfies. Source
// identifies the subsystem that originated it (the emitting server's name
// for registry mutations and log messages, the command for a launcher
// subprocess error).
type Event interface {
	Type() EventType
	Source() string
	Timestamp() time.Time
}

type baseEvent struct {
	source    string
	timestamp time.Time
}

func (e baseEvent) Source() string      { return e.source }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// RegistryChangedEvent is emitted when a feature registry (tools, prompts,
// resources, or roots) gains, loses, or mutates an entry. server's
// listChanged coalescer subscribes to these and folds bursts of them into a
// single notifications/*/list_changed per registry, per spec's
// "coalesce rapid mutations" requirement.
type RegistryChangedEvent struct {
	baseEvent
	kind EventType
}

func (e RegistryChangedEvent) Type() EventType { return e.kind }

func NewToolsChangedEvent(source string) RegistryChangedEvent {
	return RegistryChangedEvent{baseEvent: baseEvent{source: source, timestamp: time.Now()}, kind: EventToolsChanged}
}

func NewPromptsChangedEvent(source string) RegistryChangedEvent {
	return RegistryChangedEvent{baseEvent: baseEvent{source: source, timestamp: time.Now()}, kind: EventPromptsChanged}
}

func NewResourcesChangedEvent(source string) RegistryChangedEvent {
	return RegistryChangedEvent{baseEvent: baseEvent{source: source, timestamp: time.Now()}, kind: EventResourcesChanged}
}

func NewRootsChangedEvent(source string) RegistryChangedEvent {
	return RegistryChangedEvent{baseEvent: baseEvent{source: source, timestamp: time.Now()}, kind: EventRootsChanged}
}

// ResourceUpdatedEvent is emitted when a subscribed resource's contents
// change, destined for a per-URI notifications/resources/updated.
type ResourceUpdatedEvent struct {
	baseEvent
	URI string
}

func (e ResourceUpdatedEvent) Type() EventType { return EventResourceUpdated }

func NewResourceUpdatedEvent(source, uri string) ResourceUpdatedEvent {
	return ResourceUpdatedEvent{baseEvent: baseEvent{source: source, timestamp: time.Now()}, URI: uri}
}

// LogMessageEvent carries a structured log record bound for
// notifications/message; server's LoggingHandler (an slog.Handler) publishes
// one of these per emitted record instead of writing to a sink directly.
type LogMessageEvent struct {
	baseEvent
	Level  protocol.LogLevel
	Logger string
	Data   json.RawMessage
}

func (e LogMessageEvent) Type() EventType { return EventLogMessage }

func NewLogMessageEvent(source string, level protocol.LogLevel, logger string, data json.RawMessage) LogMessageEvent {
	return LogMessageEvent{
		baseEvent: baseEvent{source: source, timestamp: time.Now()},
		Level:     level,
		Logger:    logger,
		Data:      data,
	}
}

// ErrorEvent surfaces an internal failure (a launcher subprocess crash)
// onto the bus for anything subscribed to observe it, such as a test
// assertion.
type ErrorEvent struct {
	baseEvent
	Err     error
	Message string
}

func (e ErrorEvent) Type() EventType { return EventError }

func NewErrorEvent(source string, err error, message string) ErrorEvent {
	return ErrorEvent{
		baseEvent: baseEvent{source: source, timestamp: time.Now()},
		Err:       err,
		Message:   message,
	}
}
