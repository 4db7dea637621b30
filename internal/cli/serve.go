package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/ledger-reconciler/internal/api"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/logging"
)

const shutdownTimeout = 30 * time.Second

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port    int
	Verbose bool
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	flags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Verbose {
				opts.cfg.Observability.Logging.Level = "debug"
				opts.logger = logging.NewLoggerTo(cmd.ErrOrStderr(), opts.cfg.Observability.Logging)
			}
			return runServe(cmd.Context(), opts, flags)
		},
	}
	cmd.Flags().IntVar(&flags.Port, "port", 0, "Port to listen on (default server.port from config)")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	return cmd
}

// runServe runs the API server until SIGINT or SIGTERM.
func runServe(ctx context.Context, opts *rootOptions, flags *ServeFlags) error {
	app, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	logger := app.Logger.With("system", "api")

	apiCfg := api.Config{
		Port:           app.Config.Server.Port,
		AllowedOrigins: app.Config.Server.AllowedOrigins,
	}
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}

	server := api.NewServer(apiCfg, app.Service, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		select {
		case <-quit:
			logger.Info("received shutdown signal")
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start blocks until shutdown
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
