package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/lattice-mcp/mcp-sdk-go/internal/eventbus"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

// StdioLauncher spawns an MCP server subprocess and wires its stdin/stdout
// into a transport.StdioTransport. There is no PID-file orphan tracking,
// no multi-server namespace bookkeeping, and no init-retry backoff loop —
// session.Session.Call's own context deadline on initialize is sufficient
// for a single subprocess launch.
type StdioLauncher struct {
	Command string
	Args    []string
	Env     []string // additional entries appended to os.Environ()
	Dir     string

	bus *eventbus.Bus
}

// NewStdioLauncher builds a launcher publishing ErrorEvents on bus (which
// may be nil), with the command as the event source, if the subprocess's
// stderr or exit needs surfacing.
func NewStdioLauncher(command string, args []string, bus *eventbus.Bus) *StdioLauncher {
	return &StdioLauncher{Command: command, Args: args, bus: bus}
}

// LaunchedServer bundles the running subprocess with the Transport/Client
// wrapping its stdio, so the caller can Close to tear both down together.
type LaunchedServer struct {
	cmd       *exec.Cmd
	Transport transport.Transport
	Client    *Client
}

// Launch starts the subprocess, connects a Client to it, and runs the
// handshake. The returned LaunchedServer's Client is Operational on
// success. The subprocess is killed if ctx is cancelled.
func (l *StdioLauncher) Launch(ctx context.Context, opts Options, logger *slog.Logger) (*LaunchedServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, l.Command, l.Args...)
	if l.Dir != "" {
		cmd.Dir = l.Dir
	}
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("client: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("client: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("client: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("client: start %s: %w", l.Command, err)
	}

	go l.drainStderr(stderr, logger)
	go l.watchExit(cmd, logger)

	t := transport.NewStdioTransport(stdin, stdout, logger)
	c := New(opts, t)
	go c.Run(ctx)

	if _, err := c.Connect(ctx); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("client: handshake with %s: %w", l.Command, err)
	}

	return &LaunchedServer{cmd: cmd, Transport: t, Client: c}, nil
}

// Close terminates the subprocess and closes the client's session.
func (s *LaunchedServer) Close() error {
	err := s.Client.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return err
}

func (l *StdioLauncher) drainStderr(r io.Reader, logger *slog.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Debug("client: subprocess stderr", "command", l.Command, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func (l *StdioLauncher) watchExit(cmd *exec.Cmd, logger *slog.Logger) {
	err := cmd.Wait()
	if l.bus != nil {
		l.bus.Publish(eventbus.NewErrorEvent(l.Command, err, "subprocess exited"))
	}
	if err != nil {
		logger.Warn("client: subprocess exited", "command", l.Command, "error", err)
	}
}
