package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// slogToMCPLevel maps the standard library's four severities onto four of
// the eight RFC 5424 levels (debug, info, warning, error), matching the mapping go-chi/httplog/v2 uses
// internally to bridge slog.Level onto its own textual levels.
func slogToMCPLevel(l slog.Level) protocol.LogLevel {
	switch {
	case l < slog.LevelInfo:
		return protocol.LogDebug
	case l < slog.LevelWarn:
		return protocol.LogInfo
	case l < slog.LevelError:
		return protocol.LogWarning
	default:
		return protocol.LogError
	}
}

// LoggingHandler is an slog.Handler that forwards records as
// notifications/message, gated by the level most recently set via
// logging/setLevel. A server author attaches it the ordinary way:
//
//	logger := slog.New(server.NewLoggingHandler(srv, "my-tool"))
//
// grounded on go-chi/httplog/v2's own slog.Handler wrapper, generalized
// from an HTTP access log sink to the MCP notifications/message channel.
type LoggingHandler struct {
	srv    *Server
	logger string
	attrs  []slog.Attr
}

// NewLoggingHandler builds a handler that forwards through srv, tagging
// every record with the given logger name.
func NewLoggingHandler(srv *Server, logger string) *LoggingHandler {
	return &LoggingHandler{srv: srv, logger: logger}
}

func (h *LoggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogToMCPLevel(level).AtLeast(h.srv.MinLogLevel())
}

func (h *LoggingHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := make(map[string]any, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	fields["msg"] = record.Message

	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	return h.srv.sendLogMessage(ctx, slogToMCPLevel(record.Level), h.logger, data)
}

func (h *LoggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &LoggingHandler{srv: h.srv, logger: h.logger}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *LoggingHandler) WithGroup(name string) slog.Handler {
	// Groups aren't represented in notifications/message's flat data object;
	// nest the group's attrs isn't needed for this engine's use cases, so
	// records from grouped loggers are still forwarded ungrouped.
	return h
}
