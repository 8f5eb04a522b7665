package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattice-mcp/mcp-sdk-go/examples/notes"
	"github.com/lattice-mcp/mcp-sdk-go/examples/webfetch"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
	"github.com/lattice-mcp/mcp-sdk-go/server"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

var (
	serveNotesDB  string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the example tool/resource set as a stdio MCP server",
	Long: `serve runs a demonstration MCP server over stdio, exposing the
fetch tool (examples/webfetch) and a SQLite-backed note store
(examples/notes) with resources/subscribe support.

Intended to be spawned by an MCP client such as mcpctl inspect or a
Claude Desktop-style configuration.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveNotesDB, "notes-db", "", "Path to the notes SQLite database (default: in-memory)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Minimum slog level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseSlogLevel(serveLogLevel)}))

	srv := server.New(server.Options{
		Info:         protocol.Implementation{Name: "mcpctl-demo", Version: version},
		Instructions: "Demo server exposing a web-fetch tool and a note store.",
		Capabilities: protocol.ServerCapabilities{
			Tools:     &protocol.ListChanged{ListChanged: true},
			Resources: &protocol.ResourcesCapability{ListChanged: true, Subscribe: true},
			Logging:   map[string]any{},
		},
	})

	if err := webfetch.Register(srv.Tools); err != nil {
		return err
	}

	store, err := notes.Open(serveNotesDB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Register(srv.Resources, srv.Tools); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("mcpctl: received signal, shutting down")
		cancel()
	}()

	t := transport.NewStdioTransport(os.Stdout, os.Stdin, logger)
	logger.Info("mcpctl: serving over stdio")
	return srv.Serve(ctx, t)
}

func parseSlogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
