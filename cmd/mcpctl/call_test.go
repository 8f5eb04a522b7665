package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mcp/mcp-sdk-go/client"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
	"github.com/lattice-mcp/mcp-sdk-go/server"
	"github.com/lattice-mcp/mcp-sdk-go/transport"
)

func TestParseArgs_DecodesJSONAndFallsBackToString(t *testing.T) {
	got, err := parseArgs([]string{"count=3", "name=plain", "flag=true", `tags=["a","b"]`})
	require.NoError(t, err)
	assert.Equal(t, float64(3), got["count"])
	assert.Equal(t, "plain", got["name"])
	assert.Equal(t, true, got["flag"])
	assert.Equal(t, []any{"a", "b"}, got["tags"])
}

func TestParseArgs_RejectsMalformedEntry(t *testing.T) {
	_, err := parseArgs([]string{"no-equals-sign"})
	assert.Error(t, err)
}

func TestPrintTable_RendersHeaderAndRows(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printTable(cmd, []string{"NAME", "DESCRIPTION"}, [][]string{{"echo", "echoes input"}})

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "echoes input")
}

// pipedClientForCall connects a real client.Client to a server.Server
// exposing one "echo" tool, the same harness used by client_test.go, so
// dispatchCall can be exercised end to end rather than against a mock.
func pipedClientForCall(t *testing.T) (*client.Client, context.Context) {
	t.Helper()
	srv := server.New(server.Options{
		Info:         protocol.Implementation{Name: "s", Version: "0"},
		Capabilities: protocol.ServerCapabilities{Tools: &protocol.ListChanged{}},
	})
	require.NoError(t, srv.Tools.Register(protocol.Tool{Name: "echo"},
		func(ctx context.Context, args json.RawMessage) (protocol.CallToolResult, error) {
			var a struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(args, &a)
			return protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(a.Text)}}, nil
		}))

	serverStdin, clientToServer := io.Pipe()
	clientStdin, serverToClient := io.Pipe()
	clientTransport := transport.NewStdioTransport(clientToServer, clientStdin, nil)
	serverTransport := transport.NewStdioTransport(serverToClient, serverStdin, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx, serverTransport) }()

	c := client.New(client.Options{Info: protocol.Implementation{Name: "mcpctl-test", Version: "0"}}, clientTransport)
	go func() { _ = c.Run(ctx) }()
	_, err := c.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, ctx
}

func TestDispatchCall_ToolsCallPrintsResult(t *testing.T) {
	c, ctx := pipedClientForCall(t)

	callTool = "echo"
	callArgs = []string{`text="hi there"`}
	t.Cleanup(func() { callTool = ""; callArgs = nil })

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, dispatchCall(ctx, cmd, c, protocol.MethodToolsCall))
	assert.Contains(t, buf.String(), "hi there")
}

func TestDispatchCall_ToolsListPrintsTable(t *testing.T) {
	c, ctx := pipedClientForCall(t)

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, dispatchCall(ctx, cmd, c, protocol.MethodToolsList))
	assert.Contains(t, buf.String(), "echo")
}

func TestDispatchCall_UnsupportedMethod(t *testing.T) {
	c, ctx := pipedClientForCall(t)
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)

	err := dispatchCall(ctx, cmd, c, "not/a/method")
	assert.Error(t, err)
}
