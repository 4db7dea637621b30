// Package cli implements the reconciler command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/logging"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	cfgFile  string
	logLevel string
	dbPath   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the reconciler command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "reconciler",
		Short:         "Reconcile two transaction feeds and review their discrepancies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "Path to configuration file (default config.yaml, then environment)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level defined in config")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Override storage.database_path")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newMatchesCommand(opts))
	root.AddCommand(newDiscrepanciesCommand(opts))
	root.AddCommand(newResolveCommand(opts))
	root.AddCommand(newExplainCommand(opts))
	root.AddCommand(newRunsCommand(opts))
	root.AddCommand(newFormatsCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.cfg != nil {
		return nil
	}

	var cfg *config.Config
	if o.cfgFile != "" {
		loaded, err := config.Load(o.cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	if o.logLevel != "" {
		cfg.Observability.Logging.Level = o.logLevel
	}
	if o.dbPath != "" {
		cfg.Storage.DatabasePath = o.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logs go to stderr so command output stays pipeable.
	o.cfg = cfg
	o.logger = logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.Observability.Logging)
	return nil
}
