package main

import "github.com/spf13/cobra"

// Shell completion hints for a flag and a positional argument whose valid
// values are a small fixed set.
func init() {
	_ = serveCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	callCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return knownMethods, cobra.ShellCompDirectiveNoFileComp
	}
}
