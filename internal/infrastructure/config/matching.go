package config

import (
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/candidates"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/classifier"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
)

// MatchingConfig exposes every engine knob in config-file form.
type MatchingConfig struct {
	ExactThreshold        float64 `yaml:"exact_threshold"`
	MatchThreshold        float64 `yaml:"match_threshold"`
	MinCandidateThreshold float64 `yaml:"min_candidate_threshold"`

	Weights       FeatureConfig `yaml:"weights"`
	ExactMinimums FeatureConfig `yaml:"exact_minimums"`

	Tolerances ToleranceConfig      `yaml:"tolerances"`
	Candidates CandidateIndexConfig `yaml:"candidates"`
	Split      SplitConfig          `yaml:"split"`
	Fee        FeeConfig            `yaml:"fee"`
	Severity   SeverityConfig       `yaml:"severity"`

	PossibleMatches int `yaml:"possible_matches"`
	Workers         int `yaml:"workers"`
	BatchSize       int `yaml:"batch_size"`
}

// FeatureConfig holds one value per scoring feature.
type FeatureConfig struct {
	Amount       float64 `yaml:"amount"`
	Timing       float64 `yaml:"timing"`
	Description  float64 `yaml:"description"`
	Counterparty float64 `yaml:"counterparty"`
}

// ToleranceConfig holds the amount and date tolerance bands.
type ToleranceConfig struct {
	SideA             time.Duration `yaml:"side_a"`
	SideB             time.Duration `yaml:"side_b"`
	MaxAmountDelta    int64         `yaml:"max_amount_delta_minor"`
	MaxAmountDeltaPct float64       `yaml:"max_amount_delta_pct"`
	MaxDateSpan       time.Duration `yaml:"max_date_span"`
	FeeMatchScore     float64       `yaml:"fee_match_score"`
}

// CandidateIndexConfig holds bucketing settings.
type CandidateIndexConfig struct {
	BandRatio   float64 `yaml:"band_ratio"`
	WindowDays  int     `yaml:"window_days"`
	WindowReach int     `yaml:"window_reach"`
	Cap         int     `yaml:"cap"`
}

// SplitConfig holds partial-split search settings.
type SplitConfig struct {
	MaxParts      int           `yaml:"max_parts"`
	MaxCandidates int           `yaml:"max_candidates"`
	Tolerance     int64         `yaml:"tolerance_minor"`
	DateSpan      time.Duration `yaml:"date_span"`
}

// FeeConfig describes the processor fee schedule.
type FeeConfig struct {
	Percent   float64 `yaml:"percent"`
	Fixed     int64   `yaml:"fixed_minor"`
	Tolerance float64 `yaml:"tolerance"`
}

// SeverityConfig holds the severity bands.
type SeverityConfig struct {
	AmountHighPct     float64       `yaml:"amount_high_pct"`
	AmountMediumPct   float64       `yaml:"amount_medium_pct"`
	AmountHighAbs     int64         `yaml:"amount_high_minor"`
	AmountMediumAbs   int64         `yaml:"amount_medium_minor"`
	MissingHigh       int64         `yaml:"missing_high_minor"`
	MissingMedium     int64         `yaml:"missing_medium_minor"`
	TimingMediumAfter time.Duration `yaml:"timing_medium_after"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// DefaultMatching mirrors reconcile.DefaultConfig.
func DefaultMatching() MatchingConfig {
	return FromEngine(reconcile.DefaultConfig())
}

// FromEngine renders an engine config in config-file form.
func FromEngine(e reconcile.Config) MatchingConfig {
	c := e.Classifier
	return MatchingConfig{
		ExactThreshold:        c.Thresholds.Exact,
		MatchThreshold:        c.Thresholds.Match,
		MinCandidateThreshold: c.Thresholds.MinCandidate,
		Weights: FeatureConfig{
			Amount:       e.Matcher.Weights.Amount,
			Timing:       e.Matcher.Weights.Timing,
			Description:  e.Matcher.Weights.Description,
			Counterparty: e.Matcher.Weights.Counterparty,
		},
		ExactMinimums: FeatureConfig{
			Amount:       c.Minimums.Amount,
			Timing:       c.Minimums.Timing,
			Description:  c.Minimums.Description,
			Counterparty: c.Minimums.Counterparty,
		},
		Tolerances: ToleranceConfig{
			SideA:             e.SideATolerance,
			SideB:             e.SideBTolerance,
			MaxAmountDelta:    e.Matcher.MaxAmountDelta,
			MaxAmountDeltaPct: e.Matcher.MaxAmountDeltaPct,
			MaxDateSpan:       e.Matcher.MaxDateSpan,
			FeeMatchScore:     e.Matcher.FeeMatchScore,
		},
		Candidates: CandidateIndexConfig{
			BandRatio:   e.Candidates.BandRatio,
			WindowDays:  e.Candidates.WindowDays,
			WindowReach: e.Candidates.WindowReach,
			Cap:         e.Candidates.Cap,
		},
		Split: SplitConfig{
			MaxParts:      e.Split.MaxParts,
			MaxCandidates: e.Split.MaxCandidates,
			Tolerance:     e.Split.Tolerance,
			DateSpan:      e.Split.DateSpan,
		},
		Fee: FeeConfig{
			Percent:   c.Fee.Percent,
			Fixed:     c.Fee.Fixed,
			Tolerance: c.Fee.Tolerance,
		},
		Severity: SeverityConfig{
			AmountHighPct:     c.Severity.AmountHighPct,
			AmountMediumPct:   c.Severity.AmountMediumPct,
			AmountHighAbs:     c.Severity.AmountHighAbs,
			AmountMediumAbs:   c.Severity.AmountMediumAbs,
			MissingHigh:       c.Severity.MissingHigh,
			MissingMedium:     c.Severity.MissingMedium,
			TimingMediumAfter: c.Severity.TimingMediumAfter,
			StaleAfter:        c.Severity.StaleAfter,
		},
		PossibleMatches: c.PossibleMatches,
		Workers:         e.Workers,
		BatchSize:       e.BatchSize,
	}
}

// ToEngine converts the file form into the engine's per-run config. The
// result is not validated; call Validate on it.
func (m MatchingConfig) ToEngine() reconcile.Config {
	fee := matcher.FeePattern{
		Percent:   m.Fee.Percent,
		Fixed:     m.Fee.Fixed,
		Tolerance: m.Fee.Tolerance,
	}
	return reconcile.Config{
		SideATolerance: m.Tolerances.SideA,
		SideBTolerance: m.Tolerances.SideB,
		Candidates: candidates.Config{
			BandRatio:   m.Candidates.BandRatio,
			WindowDays:  m.Candidates.WindowDays,
			WindowReach: m.Candidates.WindowReach,
			Cap:         m.Candidates.Cap,
		},
		Matcher: matcher.Config{
			Weights: matcher.Weights{
				Amount:       m.Weights.Amount,
				Timing:       m.Weights.Timing,
				Description:  m.Weights.Description,
				Counterparty: m.Weights.Counterparty,
			},
			MaxAmountDelta:    m.Tolerances.MaxAmountDelta,
			MaxAmountDeltaPct: m.Tolerances.MaxAmountDeltaPct,
			MaxDateSpan:       m.Tolerances.MaxDateSpan,
			Fee:               fee,
			FeeMatchScore:     m.Tolerances.FeeMatchScore,
			MatchThreshold:    m.MatchThreshold,
		},
		Split: matcher.SplitConfig{
			MaxParts:      m.Split.MaxParts,
			MaxCandidates: m.Split.MaxCandidates,
			Tolerance:     m.Split.Tolerance,
			DateSpan:      m.Split.DateSpan,
		},
		Classifier: classifier.Config{
			Thresholds: classifier.Thresholds{
				Exact:        m.ExactThreshold,
				Match:        m.MatchThreshold,
				MinCandidate: m.MinCandidateThreshold,
			},
			Minimums: classifier.ExactMinimums{
				Amount:       m.ExactMinimums.Amount,
				Timing:       m.ExactMinimums.Timing,
				Description:  m.ExactMinimums.Description,
				Counterparty: m.ExactMinimums.Counterparty,
			},
			Fee: fee,
			Severity: classifier.SeverityBands{
				AmountHighPct:     m.Severity.AmountHighPct,
				AmountMediumPct:   m.Severity.AmountMediumPct,
				AmountHighAbs:     m.Severity.AmountHighAbs,
				AmountMediumAbs:   m.Severity.AmountMediumAbs,
				MissingHigh:       m.Severity.MissingHigh,
				MissingMedium:     m.Severity.MissingMedium,
				TimingMediumAfter: m.Severity.TimingMediumAfter,
				StaleAfter:        m.Severity.StaleAfter,
			},
			PossibleMatches: m.PossibleMatches,
		},
		Workers:   m.Workers,
		BatchSize: m.BatchSize,
	}
}
