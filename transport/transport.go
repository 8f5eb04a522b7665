// Package transport turns a byte stream into discrete JSON-RPC message
// frames and back, and manages the underlying connection's lifecycle.
package transport

import "context"

// Transport is the byte-stream boundary a Session drives. Send/Receive
// operate on one complete, already-encoded JSON-RPC message at a time;
// framing (NDJSON newlines, SSE "data:" lines, HTTP request/response
// bodies) is the implementation's concern, not the caller's.
type Transport interface {
	// Send writes one message frame.
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until the next message frame arrives, ctx is done, or
	// the transport is closed.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the underlying connection. Receive calls blocked at
	// the time of Close return an error promptly.
	Close() error
}
