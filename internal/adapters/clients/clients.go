package clients

import (
	"context"
	"log/slog"

	"github.com/eshaffer321/ledger-reconciler/internal/adapters/explainer"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
)

// Clients holds the external collaborators built from configuration.
type Clients struct {
	// Explainer is nil when no Gemini key is configured.
	Explainer service.Explainer
}

func NewClients(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Clients, error) {
	// Get API key with fallback to alternative env var names
	geminiKey := cfg.GetAPIKey(cfg.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if geminiKey == "" {
		logger.Info("no gemini api key configured, explanations use the built-in description")
		return &Clients{}, nil
	}

	gemini, err := explainer.NewGeminiClient(ctx, geminiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	return &Clients{
		Explainer: explainer.NewExplainer(gemini, explainer.NewMemoryCache(), logger),
	}, nil
}
