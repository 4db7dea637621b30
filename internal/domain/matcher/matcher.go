// Package matcher scores candidate pairs and selects the pairs to commit.
//
// A score is a weighted sum of four sub-scores, each in [0,1]:
//   - amount: 1.0 on an exact minor-unit match, linear decay to 0 at the
//     configured maximum delta. A recorded processor fee, or failing that
//     the configured fee pattern, is tried too and capped at FeeMatchScore.
//   - timing: 1.0 inside the tighter tolerance, linear decay to 0 at MaxDateSpan
//   - description: Jaccard overlap of description tokens
//   - counterparty: excluded when either side lacks one
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	pair := m.Score(a, b)
//	committed := m.Assign(pairs)
package matcher

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

const day = 24 * time.Hour

// Matcher scores and assigns pairs of normalized transactions
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher's configuration.
func (m *Matcher) Config() Config {
	return m.config
}

// Score compares two records from opposite sides. Argument order does not
// matter; the result always has A on side A.
func (m *Matcher) Score(a, b *ledger.NormalizedTransaction) ScoredPair {
	if a.Side == ledger.SideB {
		a, b = b, a
	}

	pair := ScoredPair{
		A:           a,
		B:           b,
		AmountDelta: absInt(a.AmountMinor - b.AmountMinor),
		DateDelta:   dateDelta(a, b),
	}

	if a.Currency != b.Currency {
		pair.CurrencyMismatch = true
	} else {
		pair.SubScores.Amount = m.amountScore(a.AmountMinor, b.AmountMinor)
		if feeScore, feeDelta, ok := m.feeAdjustedScore(a, b); ok {
			pair.FeeDelta = &feeDelta
			if feeScore > pair.SubScores.Amount {
				pair.SubScores.Amount = feeScore
				pair.FeeAdjusted = true
			}
		}
	}

	pair.SubScores.Timing = m.timingScore(a, b, pair.DateDelta)
	pair.SubScores.Description = DescriptionScore(a.DescriptionKey, b.DescriptionKey)
	if a.CounterpartyKey != "" && b.CounterpartyKey != "" {
		cp := CounterpartyScore(a.CounterpartyKey, b.CounterpartyKey)
		pair.SubScores.Counterparty = &cp
	}

	pair.Score = m.Combine(pair.SubScores)
	return pair
}

// Combine folds sub-scores into a total in [0,1]. The total is exactly 1.0
// only when every included sub-score is 1.0.
func (m *Matcher) Combine(s ledger.SubScores) float64 {
	w := m.config.Weights
	total := w.Amount*s.Amount + w.Timing*s.Timing + w.Description*s.Description
	weight := w.Amount + w.Timing + w.Description
	perfect := s.Amount == 1 && s.Timing == 1 && s.Description == 1

	if s.Counterparty != nil {
		total += w.Counterparty * *s.Counterparty
		weight += w.Counterparty
		perfect = perfect && *s.Counterparty == 1
	}
	if weight == 0 {
		return 0
	}
	if perfect {
		return 1
	}

	score := total / weight
	if score < 0 {
		return 0
	}
	return math.Min(score, math.Nextafter(1, 0))
}

// amountScore decays linearly with the absolute delta, floored at 0.
func (m *Matcher) amountScore(x, y int64) float64 {
	delta := absInt(x - y)
	if delta == 0 {
		return 1
	}
	limit := math.Max(float64(m.config.MaxAmountDelta),
		m.config.MaxAmountDeltaPct*float64(max(absInt(x), absInt(y))))
	if limit <= 0 {
		return 0
	}
	return math.Max(0, 1-float64(delta)/limit)
}

// feeAdjustedScore scores the pair using whichever side carries a known fee.
// Without one, the fee pattern's estimate counts only within its tolerance.
func (m *Matcher) feeAdjustedScore(a, b *ledger.NormalizedTransaction) (score float64, delta int64, ok bool) {
	switch {
	case a.FeeAdjustedAmount != nil:
		return m.netScore(a.AmountMinor, *a.FeeAdjustedAmount, b.AmountMinor)
	case b.FeeAdjustedAmount != nil:
		return m.netScore(b.AmountMinor, *b.FeeAdjustedAmount, a.AmountMinor)
	}

	fee := m.config.Fee
	if !fee.Enabled() {
		return 0, 0, false
	}
	gross := absInt(a.AmountMinor)
	net := gross - fee.Expected(gross)
	if net <= 0 || absInt(b.AmountMinor) < net-fee.Slack(gross) {
		return 0, 0, false
	}
	if a.AmountMinor < 0 {
		net = -net
	}
	return m.netScore(a.AmountMinor, net, b.AmountMinor)
}

// netScore scores other against a gross amount that loses a fee on the way
// to net. Anything between net and gross scores FeeMatchScore, so a smaller
// shortfall never scores below a larger one.
func (m *Matcher) netScore(gross, net, other int64) (score float64, delta int64, ok bool) {
	if (gross > 0) != (other > 0) || absInt(other) > absInt(gross) {
		return 0, 0, false
	}
	delta = absInt(net - other)
	if absInt(other) >= absInt(net) {
		return m.config.FeeMatchScore, delta, true
	}
	return m.config.FeeMatchScore * m.amountScore(net, other), delta, true
}

// timingScore is 1.0 within the tighter tolerance and decays linearly to 0
// at MaxDateSpan.
func (m *Matcher) timingScore(a, b *ledger.NormalizedTransaction, delta time.Duration) float64 {
	tol := min(a.Tolerance, b.Tolerance)
	if (a.DateOnly || b.DateOnly) && tol < day {
		tol = day
	}
	if delta <= tol {
		return 1
	}
	span := m.config.MaxDateSpan
	if span <= tol || delta >= span {
		return 0
	}
	return 1 - float64(delta-tol)/float64(span-tol)
}

// dateDelta compares calendar dates when either side only has a date.
func dateDelta(a, b *ledger.NormalizedTransaction) time.Duration {
	if a.DateOnly || b.DateOnly {
		da := a.OccurredAt.UTC().Truncate(day)
		db := b.OccurredAt.UTC().Truncate(day)
		return absDuration(da.Sub(db))
	}
	return absDuration(a.OccurredAt.Sub(b.OccurredAt))
}

// DescriptionScore is the Jaccard overlap of two token sets. Two empty
// descriptions are treated as identical.
func DescriptionScore(x, y string) float64 {
	xs, ys := strings.Fields(x), strings.Fields(y)
	if len(xs) == 0 && len(ys) == 0 {
		return 1
	}
	if len(xs) == 0 || len(ys) == 0 {
		return 0
	}
	set := make(map[string]bool, len(xs))
	for _, t := range xs {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(ys))
	for _, t := range ys {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// CounterpartyScore is 1.0 on equal keys, 0.7 when one contains the other.
func CounterpartyScore(x, y string) float64 {
	switch {
	case x == y:
		return 1
	case strings.Contains(x, y) || strings.Contains(y, x):
		return 0.7
	}
	return 0
}

// Assign commits pairs globally by descending score: the best remaining pair
// is committed first and both members leave the pool. Pairs below the match
// threshold are never committed. The returned pairs are in commit order.
func (m *Matcher) Assign(pairs []ScoredPair) []ScoredPair {
	ordered := make([]*ScoredPair, 0, len(pairs))
	for i := range pairs {
		if pairs[i].Score >= m.config.MatchThreshold {
			ordered = append(ordered, &pairs[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return Less(ordered[i], ordered[j]) })

	usedA := make(map[string]bool)
	usedB := make(map[string]bool)
	var committed []ScoredPair
	for _, p := range ordered {
		if usedA[p.A.ExternalID] || usedB[p.B.ExternalID] {
			continue
		}
		usedA[p.A.ExternalID] = true
		usedB[p.B.ExternalID] = true
		committed = append(committed, *p)
	}
	return committed
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
