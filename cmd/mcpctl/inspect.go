package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lattice-mcp/mcp-sdk-go/client"
	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

var inspectServerCmd string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Interactively browse a server's tools, prompts, and resources",
	Long: `inspect launches a server over stdio and opens a terminal browser
over its tools/prompts/resources: the list on the left shows everything
the server advertises, and the detail pane renders the result of
calling, reading, or fetching whatever is selected.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectServerCmd, "server", "", `Command to launch the server, e.g. "mcpctl serve"`)
	_ = inspectCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	parts := strings.Fields(inspectServerCmd)
	if len(parts) == 0 {
		return fmt.Errorf("--server must name a command")
	}

	logger := slog.New(slog.NewTextHandler(nopWriter{}, nil))
	launcher := client.NewStdioLauncher(parts[0], parts[1:], nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	launched, err := launcher.Launch(ctx, client.Options{
		Info: protocol.Implementation{Name: "mcpctl-inspect", Version: version},
	}, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("launch %q: %w", inspectServerCmd, err)
	}
	defer launched.Close()

	m := newInspectorModel(launched.Client)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// entryKind tags which kind of entry a list row represents.
type entryKind int

const (
	kindTool entryKind = iota
	kindPrompt
	kindResource
)

type entryItem struct {
	kind entryKind
	name string
	desc string
}

func (i entryItem) Title() string       { return i.name }
func (i entryItem) Description() string { return i.desc }
func (i entryItem) FilterValue() string { return i.name }

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	panelStyle = lipgloss.NewStyle().Padding(1, 2)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

type resultMsg struct {
	text string
	err  error
}

type inspectorModel struct {
	client *client.Client
	list   list.Model
	result string
	err    error
	width  int
	height int
}

func newInspectorModel(c *client.Client) inspectorModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "tools / prompts / resources"
	l.SetShowHelp(true)
	return inspectorModel{client: c, list: l}
}

func (m inspectorModel) Init() tea.Cmd {
	return m.loadEntries
}

func (m inspectorModel) loadEntries() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var items []list.Item
	if tools, err := m.client.ListTools(ctx); err == nil {
		for _, t := range tools {
			items = append(items, entryItem{kind: kindTool, name: t.Name, desc: t.Description})
		}
	}
	if prompts, err := m.client.ListPrompts(ctx); err == nil {
		for _, p := range prompts {
			items = append(items, entryItem{kind: kindPrompt, name: p.Name, desc: p.Description})
		}
	}
	if resources, err := m.client.ListResources(ctx); err == nil {
		for _, r := range resources {
			items = append(items, entryItem{kind: kindResource, name: r.URI, desc: r.Name})
		}
	}
	return entriesLoadedMsg{items: items}
}

type entriesLoadedMsg struct{ items []list.Item }

func (m inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width/2, msg.Height-2)
		return m, nil

	case entriesLoadedMsg:
		m.list.SetItems(msg.items)
		return m, nil

	case resultMsg:
		m.result = msg.text
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(entryItem); ok {
				return m, m.activate(item)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// activate runs the selected entry. A tool is called with empty arguments
// ({}), so a tool with required arguments returns a schema error that is
// shown in the result pane; a resource is read; a prompt is fetched, with no
// arguments, only after a huh confirmation.
func (m inspectorModel) activate(item entryItem) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		switch item.kind {
		case kindTool:
			result, err := m.client.CallTool(ctx, item.name, json.RawMessage("{}"))
			if err != nil {
				return resultMsg{err: err}
			}
			var sb strings.Builder
			for _, c := range result.Content {
				if c.Type == protocol.ContentText {
					sb.WriteString(c.Text)
					sb.WriteString("\n")
				}
			}
			return resultMsg{text: sb.String()}

		case kindResource:
			contents, err := m.client.ReadResource(ctx, item.name)
			if err != nil {
				return resultMsg{err: err}
			}
			var sb strings.Builder
			for _, c := range contents {
				sb.WriteString(c.Text)
				sb.WriteString("\n")
			}
			return resultMsg{text: sb.String()}

		case kindPrompt:
			confirmed := confirmRunPrompt(item.name)
			if !confirmed {
				return resultMsg{text: "cancelled"}
			}
			result, err := m.client.GetPrompt(ctx, item.name, nil)
			if err != nil {
				return resultMsg{err: err}
			}
			var sb strings.Builder
			for _, msg := range result.Messages {
				sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content.Text))
			}
			return resultMsg{text: sb.String()}
		}
		return resultMsg{}
	}
}

// confirmRunPrompt uses huh for the one interactive decision this
// inspector needs: whether to actually render a prompt (prompts/get can
// be expensive against a real LLM-backed server), the same
// confirm-before-acting gate.
func confirmRunPrompt(name string) bool {
	confirmed := false
	_ = huh.NewConfirm().
		Title(fmt.Sprintf("Fetch prompt %q?", name)).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed).
		Run()
	return confirmed
}

func (m inspectorModel) View() string {
	left := m.list.View()

	var right strings.Builder
	right.WriteString(titleStyle.Render("result"))
	right.WriteString("\n\n")
	if m.err != nil {
		right.WriteString(errorStyle.Render(m.err.Error()))
	} else {
		right.WriteString(m.result)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, left, panelStyle.Render(right.String()))
}
