package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
)

// HTTPServerSession is a per-connection Transport for the server side of
// Streamable HTTP: one JSON-RPC session, identified by an Mcp-Session-Id
// the server mints with github.com/google/uuid.
// Inbound messages arrive from POST request bodies. Outbound messages share
// one queue, drained by whichever reader takes them first: a POST handler
// waiting for a reply, or the long-lived GET SSE stream. A reply is not
// routed to the POST that triggered it by id or by message type.
type HTTPServerSession struct {
	id string

	mu     sync.Mutex
	closed bool

	inbound  chan []byte
	outbound chan []byte
}

func newHTTPServerSession() *HTTPServerSession {
	return &HTTPServerSession{
		id:       uuid.NewString(),
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
	}
}

// ID returns the Mcp-Session-Id this session was assigned.
func (s *HTTPServerSession) ID() string { return s.id }

// Send queues msg for delivery, either to a waiting POST responder or to
// the SSE stream, whichever drains it first.
func (s *HTTPServerSession) Send(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("transport: http server session closed")
	}
	s.mu.Unlock()
	select {
	case s.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next inbound message (one POST body's contents).
func (s *HTTPServerSession) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-s.inbound:
		if !ok {
			return nil, errors.New("transport: http server session closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the session closed: later Sends fail and a pending Receive
// returns an error. A Send blocked on a full queue unblocks only via its
// ctx, and an open SSE handler keeps running until its request ends.
func (s *HTTPServerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.inbound)
	return nil
}

// HTTPServer mounts the Streamable HTTP surface (POST/GET/DELETE /mcp) on
// a chi router, with github.com/go-chi/chi/v5 as the mux and
// github.com/go-chi/httplog/v2 for structured access logging.
type HTTPServer struct {
	logger *httplog.Logger

	mu       sync.Mutex
	sessions map[string]*HTTPServerSession

	// OnSession is called once per newly created session (a POST whose
	// Mcp-Session-Id header is absent or names no known session, which for
	// MCP is always initialize). The caller is expected to start driving the returned
	// Transport with a session.Session in a new goroutine.
	OnSession func(s *HTTPServerSession)

	// PostTimeout bounds how long a POST handler waits for a synchronous
	// reply before falling back to 202 Accepted (the message was
	// queued for SSE delivery once the handler produces a reply).
	PostTimeout time.Duration
}

// NewHTTPServer builds an HTTPServer. logger may be nil to use a sane
// default JSON httplog configuration.
func NewHTTPServer(logger *httplog.Logger) *HTTPServer {
	if logger == nil {
		logger = httplog.NewLogger("mcp-sdk-go", httplog.Options{
			JSON:             true,
			LogLevel:         slog.LevelInfo,
			Concise:          true,
			MessageFieldName: "message",
		})
	}
	return &HTTPServer{
		logger:      logger,
		sessions:    make(map[string]*HTTPServerSession),
		PostTimeout: 30 * time.Second,
	}
}

// Router builds the chi.Router exposing POST/GET/DELETE /mcp.
func (h *HTTPServer) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(h.logger))
	r.Post("/mcp", h.handlePost)
	r.Get("/mcp", h.handleSSE)
	r.Delete("/mcp", h.handleDelete)
	return r
}

func (h *HTTPServer) session(id string) (*HTTPServerSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	sess, existing := h.session(sessionID)
	if !existing {
		sess = newHTTPServerSession()
		h.mu.Lock()
		h.sessions[sess.id] = sess
		h.mu.Unlock()
		if h.OnSession != nil {
			h.OnSession(sess)
		}
	}

	w.Header().Set("Mcp-Session-Id", sess.id)

	select {
	case sess.inbound <- body:
	case <-r.Context().Done():
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.PostTimeout)
	defer cancel()

	select {
	case reply := <-sess.outbound:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(reply)
	case <-ctx.Done():
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	sess, ok := h.session(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg, ok := <-sess.outbound:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	_ = sess.Close()
	w.WriteHeader(http.StatusNoContent)
}
