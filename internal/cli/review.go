package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

type listFlags struct {
	accountID string
	limit     int
	offset    int
	json      bool
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.accountID, "account", "", "Account to list (required)")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "Maximum rows to print")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print as JSON")
	_ = cmd.MarkFlagRequired("account")
}

func newMatchesCommand(opts *rootOptions) *cobra.Command {
	var (
		list              listFlags
		status            string
		kind              string
		severity          string
		includeSuperseded bool
	)

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List the matches of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			result, err := app.Service.ListMatches(cmd.Context(), storage.MatchFilters{
				AccountID:         list.accountID,
				Status:            ledger.Status(strings.ToUpper(status)),
				Kind:              ledger.MatchKind(strings.ToUpper(kind)),
				Severity:          ledger.Severity(strings.ToUpper(severity)),
				IncludeSuperseded: includeSuperseded,
				Limit:             list.limit,
				Offset:            list.offset,
			})
			if err != nil {
				return err
			}

			if list.json {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			PrintMatches(cmd.OutOrStdout(), result)
			return nil
		},
	}
	list.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: exact, fuzzy, partial_split, unmatched")
	cmd.Flags().StringVar(&severity, "severity", "", "Only matches with an open discrepancy of this severity")
	cmd.Flags().BoolVar(&includeSuperseded, "include-superseded", false, "Include matches replaced by later runs")

	cmd.AddCommand(newMatchShowCommand(opts))
	return cmd
}

func newMatchShowCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <match-id>",
		Short: "Show a match with its discrepancies and resolutions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			detail, err := app.Service.GetMatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), detail)
			}
			PrintMatchDetail(cmd.OutOrStdout(), detail)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newDiscrepanciesCommand(opts *rootOptions) *cobra.Command {
	var (
		list     listFlags
		status   string
		severity string
		kind     string
	)

	cmd := &cobra.Command{
		Use:   "discrepancies",
		Short: "List the discrepancies of an account, most severe first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := storage.DiscrepancyFilters{
				AccountID: list.accountID,
				Severity:  ledger.Severity(strings.ToUpper(severity)),
				Type:      ledger.DiscrepancyType(strings.ToUpper(kind)),
				Limit:     list.limit,
				Offset:    list.offset,
			}
			switch s := strings.ToLower(status); s {
			case "all":
			case string(ledger.DiscrepancyOpen), string(ledger.DiscrepancyResolved):
				filters.Status = ledger.DiscrepancyStatus(s)
			default:
				return fmt.Errorf("--status must be open, resolved or all")
			}

			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			result, err := app.Service.ListDiscrepancies(cmd.Context(), filters)
			if err != nil {
				return err
			}

			if list.json {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			PrintDiscrepancies(cmd.OutOrStdout(), result)
			return nil
		},
	}
	list.register(cmd)
	cmd.Flags().StringVar(&status, "status", string(ledger.DiscrepancyOpen), "open, resolved or all")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity: low, medium, high")
	cmd.Flags().StringVar(&kind, "type", "", "Filter by type, e.g. amount_mismatch")
	return cmd
}

func newResolveCommand(opts *rootOptions) *cobra.Command {
	var (
		action     string
		notes      string
		adjustment int64
		resolvedBy string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <discrepancy-id>",
		Short: "Record an operator decision on a discrepancy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.ResolveRequest{
				DiscrepancyID: args[0],
				Action:        ledger.ResolutionAction(strings.ToLower(action)),
				Notes:         notes,
				ResolvedBy:    resolvedBy,
			}
			if cmd.Flags().Changed("adjustment") {
				req.AdjustmentAmount = &adjustment
			}

			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			result, err := app.Service.Resolve(cmd.Context(), req)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			PrintResolution(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "mark_as_expected, flag_for_review, create_ledger_entry, ignore_permanently, manual_match, split_transaction or adjust_amount (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text notes")
	cmd.Flags().Int64Var(&adjustment, "adjustment", 0, "Adjustment in minor units, for adjust_amount")
	cmd.Flags().StringVar(&resolvedBy, "by", "", "Operator name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newExplainCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "explain <match-id>",
		Short: "Describe a match and its discrepancies in plain language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			exp, err := app.Service.Explain(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), exp)
			}
			PrintExplanation(cmd.OutOrStdout(), exp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var (
		accountID string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent reconciliation runs of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be greater than zero")
			}

			app, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			runs, err := app.Service.ListRuns(cmd.Context(), accountID, limit)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Account to list (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to display")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
