package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/feeds"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", Version)
		},
	}
}

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "formats",
		Short:             "List supported feed formats",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range feeds.Formats() {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
		},
	}
}
