package classifier

import (
	"fmt"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
)

// Thresholds are the score cut-offs of the decision policy.
type Thresholds struct {
	Exact        float64
	Match        float64
	MinCandidate float64
}

// ExactMinimums are the per-feature floors an EXACT match must clear.
type ExactMinimums struct {
	Amount       float64
	Timing       float64
	Description  float64
	Counterparty float64
}

// FeePattern is shared with the matcher so both agree on what a fee is.
type FeePattern = matcher.FeePattern

// SeverityBands map magnitudes onto severities.
type SeverityBands struct {
	AmountHighPct   float64
	AmountMediumPct float64
	AmountHighAbs   int64
	AmountMediumAbs int64

	MissingHigh   int64
	MissingMedium int64

	TimingMediumAfter time.Duration
	StaleAfter        time.Duration
}

// Config holds classifier configuration
type Config struct {
	Thresholds Thresholds
	Minimums   ExactMinimums
	Fee        FeePattern
	Severity   SeverityBands

	// PossibleMatches is how many near misses an unmatched record lists.
	PossibleMatches int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Exact:        0.95,
			Match:        0.60,
			MinCandidate: 0.40,
		},
		Minimums: ExactMinimums{
			Amount:       1.0,
			Timing:       0.9,
			Description:  0.5,
			Counterparty: 0.7,
		},
		Fee: matcher.DefaultFeePattern(),
		Severity: SeverityBands{
			AmountHighPct:     0.10,
			AmountMediumPct:   0.01,
			AmountHighAbs:     10000,
			AmountMediumAbs:   1000,
			MissingHigh:       25000,
			MissingMedium:     5000,
			TimingMediumAfter: 7 * 24 * time.Hour,
			StaleAfter:        14 * 24 * time.Hour,
		},
		PossibleMatches: 3,
	}
}

// Validate rejects threshold orderings and ranges the policy cannot apply.
func (c Config) Validate() error {
	t := c.Thresholds
	if t.MinCandidate < 0 || t.Exact > 1 {
		return fmt.Errorf("thresholds must lie in [0,1]: %+v", t)
	}
	if t.Match > t.Exact {
		return fmt.Errorf("match threshold %.2f exceeds exact threshold %.2f", t.Match, t.Exact)
	}
	if t.MinCandidate > t.Match {
		return fmt.Errorf("min candidate threshold %.2f exceeds match threshold %.2f", t.MinCandidate, t.Match)
	}
	m := c.Minimums
	for name, v := range map[string]float64{"amount": m.Amount, "timing": m.Timing, "description": m.Description, "counterparty": m.Counterparty} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s exact minimum must be in [0,1], got %v", name, v)
		}
	}
	if c.Fee.Percent < 0 || c.Fee.Percent >= 1 || c.Fee.Fixed < 0 || c.Fee.Tolerance < 0 {
		return fmt.Errorf("invalid fee pattern: %+v", c.Fee)
	}
	s := c.Severity
	if s.AmountMediumPct > s.AmountHighPct || s.AmountMediumAbs > s.AmountHighAbs || s.MissingMedium > s.MissingHigh {
		return fmt.Errorf("severity bands must have medium at or below high: %+v", s)
	}
	if c.PossibleMatches < 0 {
		return fmt.Errorf("possible matches must not be negative")
	}
	return nil
}
