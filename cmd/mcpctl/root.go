// Command mcpctl is a small CLI around this module's client and server
// packages: run a demo stdio server, make a one-shot client call, or
// browse a server interactively.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "mcpctl",
	Short:   "Run and talk to MCP servers built on mcp-sdk-go",
	Version: version,
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mcpctl:", err)
		os.Exit(1)
	}
}
