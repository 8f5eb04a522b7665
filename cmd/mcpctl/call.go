package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lattice-mcp/mcp-sdk-go/client"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

var knownMethods = []string{
	protocol.MethodToolsList, protocol.MethodToolsCall,
	protocol.MethodPromptsList, protocol.MethodPromptsGet,
	protocol.MethodResourcesList, protocol.MethodResourcesRead,
}

var (
	callServerCmd string
	callArgs      []string
	callTool      string
	callPrompt    string
	callURI       string
)

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
var headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)

var callCmd = &cobra.Command{
	Use:   "call <method>",
	Short: "Make one request against a server launched over stdio",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callServerCmd, "server", "", `Command to launch the server, e.g. "mcpctl serve"`)
	callCmd.Flags().StringArrayVar(&callArgs, "arg", nil, "key=value argument, repeatable (used by tools/call and prompts/get)")
	callCmd.Flags().StringVar(&callTool, "tool", "", "Tool name (tools/call)")
	callCmd.Flags().StringVar(&callPrompt, "prompt", "", "Prompt name (prompts/get)")
	callCmd.Flags().StringVar(&callURI, "uri", "", "Resource URI (resources/read)")
	_ = callCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]

	parts := strings.Fields(callServerCmd)
	if len(parts) == 0 {
		return fmt.Errorf("--server must name a command")
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	launcher := client.NewStdioLauncher(parts[0], parts[1:], nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	launched, err := launcher.Launch(ctx, client.Options{
		Info: protocol.Implementation{Name: "mcpctl", Version: version},
	}, logger)
	if err != nil {
		return fmt.Errorf("launch %q: %w", callServerCmd, err)
	}
	defer launched.Close()

	return dispatchCall(ctx, cmd, launched.Client, method)
}

func dispatchCall(ctx context.Context, cmd *cobra.Command, c *client.Client, method string) error {
	argMap, err := parseArgs(callArgs)
	if err != nil {
		return err
	}

	switch method {
	case protocol.MethodToolsList:
		tools, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, len(tools))
		for i, t := range tools {
			rows[i] = []string{t.Name, t.Description}
		}
		printTable(cmd, []string{"NAME", "DESCRIPTION"}, rows)

	case protocol.MethodToolsCall:
		if callTool == "" {
			return fmt.Errorf("--tool is required for tools/call")
		}
		raw, err := json.Marshal(argMap)
		if err != nil {
			return err
		}
		result, err := c.CallTool(ctx, callTool, raw)
		if err != nil {
			return err
		}
		printCallResult(cmd, result)

	case protocol.MethodPromptsList:
		prompts, err := c.ListPrompts(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, len(prompts))
		for i, p := range prompts {
			rows[i] = []string{p.Name, p.Description}
		}
		printTable(cmd, []string{"NAME", "DESCRIPTION"}, rows)

	case protocol.MethodPromptsGet:
		if callPrompt == "" {
			return fmt.Errorf("--prompt is required for prompts/get")
		}
		strArgs := make(map[string]string, len(argMap))
		for k, v := range argMap {
			strArgs[k] = fmt.Sprintf("%v", v)
		}
		result, err := c.GetPrompt(ctx, callPrompt, strArgs)
		if err != nil {
			return err
		}
		for _, m := range result.Messages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", m.Role, m.Content.Text)
		}

	case protocol.MethodResourcesList:
		resources, err := c.ListResources(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, len(resources))
		for i, r := range resources {
			rows[i] = []string{r.URI, r.Name, r.MimeType}
		}
		printTable(cmd, []string{"URI", "NAME", "MIME"}, rows)

	case protocol.MethodResourcesRead:
		if callURI == "" {
			return fmt.Errorf("--uri is required for resources/read")
		}
		contents, err := c.ReadResource(ctx, callURI)
		if err != nil {
			return err
		}
		for _, content := range contents {
			fmt.Fprintln(cmd.OutOrStdout(), content.Text)
		}

	default:
		return fmt.Errorf("unsupported method %q (supported: %s)", method, strings.Join(knownMethods, ", "))
	}
	return nil
}

func printCallResult(cmd *cobra.Command, result *protocol.CallToolResult) {
	out := cmd.OutOrStdout()
	if result.IsError {
		fmt.Fprintln(out, errStyle.Render("tool error:"))
	}
	for _, c := range result.Content {
		if c.Type == protocol.ContentText {
			fmt.Fprintln(out, c.Text)
		}
	}
}

func printTable(cmd *cobra.Command, header []string, rows [][]string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headingStyle.Render(strings.Join(header, "  ")))
	table := tablewriter.NewWriter(out)
	table.Header(header)
	table.Bulk(rows)
	table.Render()
}

func parseArgs(kv []string) (map[string]any, error) {
	out := map[string]any{}
	for _, entry := range kv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --arg %q, expected key=value", entry)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			decoded = v // plain string fallback
		}
		out[k] = decoded
	}
	return out, nil
}
