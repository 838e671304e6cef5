package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stashd/stash/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "stash-configure",
		Short: "Operations tool for the stash API",
		Long:  "CLI tool for rate limit configuration, maintenance runs, and AI connectivity checks",
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewSuggestionsCmd())
	rootCmd.AddCommand(commands.NewMaintenanceCmd())
	rootCmd.AddCommand(commands.NewTestAICmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
