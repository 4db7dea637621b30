package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/clients"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// App bundles what every command needs once config is loaded.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *storage.Storage
	Service *service.ReconcileService
}

// NewApp opens storage and builds the reconcile service from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	c, err := clients.NewClients(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init clients: %w", err)
	}

	svcCfg := service.Config{
		Engine:         cfg.Matching.ToEngine(),
		ExplainTimeout: cfg.Gemini.Timeout,
	}
	svc := service.NewReconcileService(svcCfg, store, c.Explainer, logger.With("system", "service"))

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Service: svc,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

func (o *rootOptions) open(ctx context.Context) (*App, error) {
	if o.cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return NewApp(ctx, o.cfg, o.logger)
}
