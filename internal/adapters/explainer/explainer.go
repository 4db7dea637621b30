// Package explainer produces operator-facing prose for reconciliation
// matches using a generative model.
package explainer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// GenerativeClient interface for text generation calls
type GenerativeClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Explainer explains matches and their discrepancies. Answers are cached per
// match and discrepancy state, so resolving a discrepancy yields a fresh one.
type Explainer struct {
	client GenerativeClient
	cache  Cache
	logger *slog.Logger
}

// NewExplainer creates a new explainer. A nil cache disables caching.
func NewExplainer(client GenerativeClient, cache Cache, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		client: client,
		cache:  cache,
		logger: logger,
	}
}

// Explain returns a short explanation of the match.
func (e *Explainer) Explain(ctx context.Context, match ledger.Match, discrepancies []ledger.Discrepancy) (string, error) {
	key := cacheKey(match, discrepancies)
	if e.cache != nil {
		if text, found := e.cache.Get(key); found {
			e.logger.Debug("explanation cache hit", "match_id", match.ID)
			return text, nil
		}
	}

	prompt, err := buildPrompt(match, discrepancies)
	if err != nil {
		return "", err
	}

	text, err := e.client.GenerateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("explain match %s: %w", match.ID, err)
	}
	text = strings.TrimSpace(text)

	if e.cache != nil && text != "" {
		e.cache.Set(key, text)
	}
	return text, nil
}

// cacheKey identifies a match in a particular discrepancy state.
func cacheKey(match ledger.Match, discrepancies []ledger.Discrepancy) string {
	parts := make([]string, 0, len(discrepancies))
	for _, d := range discrepancies {
		parts = append(parts, d.ID+"="+string(d.Status))
	}
	sort.Strings(parts)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", match.ID, match.Status, strings.Join(parts, ","))
	return hex.EncodeToString(h.Sum(nil))
}

type promptDiscrepancy struct {
	Type            ledger.DiscrepancyType   `json:"type"`
	Severity        ledger.Severity          `json:"severity"`
	Status          ledger.DiscrepancyStatus `json:"status"`
	SuggestedAction string                   `json:"suggested_action,omitempty"`
	Detail          map[string]any           `json:"detail,omitempty"`
}

type promptMatch struct {
	Kind          ledger.MatchKind    `json:"kind"`
	Status        ledger.Status       `json:"status"`
	Confidence    float64             `json:"confidence"`
	SubScores     ledger.SubScores    `json:"sub_scores"`
	SourceA       []string            `json:"source_a"`
	SourceB       []string            `json:"source_b"`
	Discrepancies []promptDiscrepancy `json:"discrepancies"`
}

// buildPrompt creates the prompt for the model
func buildPrompt(match ledger.Match, discrepancies []ledger.Discrepancy) (string, error) {
	pm := promptMatch{
		Kind:          match.Kind,
		Status:        match.Status,
		Confidence:    match.Confidence,
		SubScores:     match.SubScores,
		SourceA:       match.SideARefs,
		SourceB:       match.SideBRefs,
		Discrepancies: make([]promptDiscrepancy, 0, len(discrepancies)),
	}
	for _, d := range discrepancies {
		pm.Discrepancies = append(pm.Discrepancies, promptDiscrepancy{
			Type:            d.Type,
			Severity:        d.Severity,
			Status:          d.Status,
			SuggestedAction: d.SuggestedAction,
			Detail:          d.Detail,
		})
	}

	payload, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal match for prompt: %w", err)
	}

	return fmt.Sprintf(`You are assisting an accountant who reconciles a payments processor feed (source A) against an accounting ledger (source B).

Explain in at most four sentences why the records below were paired the way they were and what the listed discrepancies mean.
Amounts in the detail are in minor currency units (cents for USD).
Do not invent records or amounts that are not listed. If a suggested action is present, say whether it looks reasonable.

Reconciliation result:
%s
`, payload), nil
}
