package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/candidates"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/classifier"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalizer"
)

// ErrInvalidConfig is returned before any record is touched when the
// configuration cannot be applied.
var ErrInvalidConfig = errors.New("invalid reconciliation config")

// Config carries every tunable of a run. It is passed per call; nothing is
// read from package state.
type Config struct {
	SideATolerance time.Duration
	SideBTolerance time.Duration

	Candidates candidates.Config
	Matcher    matcher.Config
	Split      matcher.SplitConfig
	Classifier classifier.Config

	Workers   int // concurrent scoring batches
	BatchSize int // side-A records per batch
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SideATolerance: 12 * time.Hour,
		SideBTolerance: 48 * time.Hour,
		Candidates:     candidates.DefaultConfig(),
		Matcher:        matcher.DefaultConfig(),
		Split:          matcher.DefaultSplitConfig(),
		Classifier:     classifier.DefaultConfig(),
		Workers:        4,
		BatchSize:      256,
	}
}

// Validate checks every section. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.SideATolerance <= 0 || c.SideBTolerance <= 0 {
		return fmt.Errorf("%w: side tolerances must be positive", ErrInvalidConfig)
	}
	if err := c.Candidates.Validate(); err != nil {
		return fmt.Errorf("%w: candidates: %v", ErrInvalidConfig, err)
	}
	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("%w: matcher: %v", ErrInvalidConfig, err)
	}
	if err := c.Split.Validate(); err != nil {
		return fmt.Errorf("%w: split: %v", ErrInvalidConfig, err)
	}
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("%w: classifier: %v", ErrInvalidConfig, err)
	}
	if c.Workers < 1 || c.BatchSize < 1 {
		return fmt.Errorf("%w: workers and batch size must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// NormalizerConfig returns the normalizer settings for a run anchored at asOf.
func (c Config) NormalizerConfig(asOf time.Time) normalizer.Config {
	return normalizer.Config{
		SideATolerance: c.SideATolerance,
		SideBTolerance: c.SideBTolerance,
		AsOf:           asOf,
	}
}

// matcherConfig keeps the commit threshold and the fee pattern in one place:
// the classifier's.
func (c Config) matcherConfig() matcher.Config {
	m := c.Matcher
	m.MatchThreshold = c.Classifier.Thresholds.Match
	m.Fee = c.Classifier.Fee
	return m
}
