package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// StdioTransport implements Transport over a pair of stdin/stdout-shaped
// pipes using NDJSON (newline-delimited JSON) framing.
type StdioTransport struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	reader *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewStdioTransport wraps a write side (stdin: a child process's stdin
// pipe, or os.Stdout for the process's own stdio) and a read side (stdout:
// the child's stdout pipe, or os.Stdin) as a Transport. A nil logger disables
// payload-level debug logging.
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser, logger *slog.Logger) *StdioTransport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StdioTransport{
		stdin:  stdin,
		stdout: stdout,
		reader: bufio.NewReader(stdout),
		logger: logger,
	}
}

// Send writes msg followed by a newline.
func (t *StdioTransport) Send(ctx context.Context, msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport: stdio transport closed")
	}

	t.logger.Debug("stdio send", "bytes", len(msg))
	if _, err := t.stdin.Write(msg); err != nil {
		return fmt.Errorf("transport: write message: %w", err)
	}
	if _, err := t.stdin.Write([]byte("\n")); err != nil {
		return fmt.Errorf("transport: write newline: %w", err)
	}
	return nil
}

type stdioReadResult struct {
	line []byte
	err  error
}

// Receive reads the next newline-delimited frame, skipping blank lines.
// Respects context cancellation by closing stdout to unblock the
// in-flight read.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, fmt.Errorf("transport: stdio transport closed")
		}
		t.mu.Unlock()

		resultCh := make(chan stdioReadResult, 1)
		go func() {
			line, err := t.reader.ReadBytes('\n')
			resultCh <- stdioReadResult{line: line, err: err}
		}()

		select {
		case result := <-resultCh:
			if result.err != nil {
				return nil, fmt.Errorf("transport: read line: %w", result.err)
			}
			msg := bytes.TrimSpace(result.line)
			if len(msg) == 0 {
				continue // blank line, keep reading
			}
			t.logger.Debug("stdio recv", "bytes", len(msg))
			return msg, nil

		case <-ctx.Done():
			_ = t.stdout.Close()
			return nil, ctx.Err()
		}
	}
}

// Close closes both the write and read ends.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	if err := t.stdin.Close(); err != nil {
		firstErr = fmt.Errorf("transport: close stdin: %w", err)
	}
	if err := t.stdout.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("transport: close stdout: %w", err)
	}
	return firstErr
}
