package cli

import (
	"github.com/spf13/cobra"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile two feed files for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.ToTriggerRequest()
			if err != nil {
				return err
			}

			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			summary, err := app.Service.Trigger(cmd.Context(), req)
			if err != nil {
				return err
			}

			if flags.JSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			PrintRunSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
