package matcher

import (
	"fmt"
	"math"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Weights holds the per-feature weights of the score. They must sum to 1.
type Weights struct {
	Amount       float64
	Timing       float64
	Description  float64
	Counterparty float64
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Amount + w.Timing + w.Description + w.Counterparty
}

// FeePattern describes the processor's fee schedule, used when a record
// carries no explicit fee.
type FeePattern struct {
	Percent   float64 // e.g. 0.029
	Fixed     int64   // minor units, e.g. 30
	Tolerance float64 // fraction of the gross amount, e.g. 0.005
}

// DefaultFeePattern is 2.9% plus 30 minor units, within half a percent.
func DefaultFeePattern() FeePattern {
	return FeePattern{Percent: 0.029, Fixed: 30, Tolerance: 0.005}
}

// Expected returns the fee the pattern predicts for a gross amount.
func (f FeePattern) Expected(gross int64) int64 {
	return int64(float64(gross)*f.Percent+0.5) + f.Fixed
}

// Slack is the allowed distance between an observed and a predicted fee.
func (f FeePattern) Slack(gross int64) int64 {
	return max(1, int64(math.Round(f.Tolerance*float64(gross))))
}

// Enabled reports whether the pattern predicts any fee at all.
func (f FeePattern) Enabled() bool {
	return f.Percent != 0 || f.Fixed != 0
}

// Config holds matcher configuration
type Config struct {
	Weights Weights

	// Fee is tried when neither side records its fee.
	Fee FeePattern

	MaxAmountDelta    int64         // minor units at which amount_score reaches 0 (default: 500)
	MaxAmountDeltaPct float64       // same, as a fraction of the larger amount (default: 0.05)
	MaxDateSpan       time.Duration // timing_score reaches 0 here (default: 14 days)
	FeeMatchScore     float64       // ceiling for a fee-adjusted amount match (default: 0.9)

	// MatchThreshold is the minimum score a pair needs to be committed.
	MatchThreshold float64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Amount:       0.45,
			Timing:       0.30,
			Description:  0.15,
			Counterparty: 0.10,
		},
		Fee:               DefaultFeePattern(),
		MaxAmountDelta:    500,
		MaxAmountDeltaPct: 0.05,
		MaxDateSpan:       14 * 24 * time.Hour,
		FeeMatchScore:     0.9,
		MatchThreshold:    0.60,
	}
}

// Validate checks the config for values the scorer cannot work with.
func (c Config) Validate() error {
	w := c.Weights
	if w.Amount < 0 || w.Timing < 0 || w.Description < 0 || w.Counterparty < 0 {
		return fmt.Errorf("weights must not be negative: %+v", w)
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", w.Sum())
	}
	if w.Amount+w.Timing+w.Description == 0 {
		return fmt.Errorf("at least one of amount, timing or description must carry weight")
	}
	if c.MaxAmountDelta < 0 || c.MaxAmountDeltaPct < 0 {
		return fmt.Errorf("amount tolerances must not be negative")
	}
	if c.MaxAmountDelta == 0 && c.MaxAmountDeltaPct == 0 {
		return fmt.Errorf("one of max amount delta or max amount delta pct must be positive")
	}
	if c.MaxDateSpan <= 0 {
		return fmt.Errorf("max date span must be positive, got %s", c.MaxDateSpan)
	}
	if c.Fee.Percent < 0 || c.Fee.Percent >= 1 || c.Fee.Fixed < 0 || c.Fee.Tolerance < 0 {
		return fmt.Errorf("invalid fee pattern: %+v", c.Fee)
	}
	if c.FeeMatchScore <= 0 || c.FeeMatchScore >= 1 {
		return fmt.Errorf("fee match score must be in (0,1), got %v", c.FeeMatchScore)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in [0,1], got %v", c.MatchThreshold)
	}
	return nil
}

// ScoredPair is a side-A record, a side-B record and how alike they are.
type ScoredPair struct {
	A *ledger.NormalizedTransaction
	B *ledger.NormalizedTransaction

	Score     float64
	SubScores ledger.SubScores

	DateDelta   time.Duration // absolute
	AmountDelta int64         // absolute, before any fee adjustment
	FeeDelta    *int64        // absolute, against the fee-adjusted amount

	FeeAdjusted      bool // amount_score came from the fee-adjusted amount
	CurrencyMismatch bool

	// Overflow is set when either record hit the candidate cap.
	Overflow bool
}

// Less orders pairs for the global greedy pass: higher score first, then
// smaller date delta, smaller amount delta, then external ids.
func Less(p, q *ScoredPair) bool {
	if p.Score != q.Score {
		return p.Score > q.Score
	}
	if p.DateDelta != q.DateDelta {
		return p.DateDelta < q.DateDelta
	}
	if p.AmountDelta != q.AmountDelta {
		return p.AmountDelta < q.AmountDelta
	}
	if p.A.ExternalID != q.A.ExternalID {
		return p.A.ExternalID < q.A.ExternalID
	}
	return p.B.ExternalID < q.B.ExternalID
}
