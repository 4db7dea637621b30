package matcher

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// SplitConfig bounds the search for one record paid as several.
type SplitConfig struct {
	MaxParts      int           // most parts a split may have (default: 4)
	MaxCandidates int           // pool size searched per target (default: 12)
	Tolerance     int64         // allowed |sum - target| in minor units (default: 0)
	DateSpan      time.Duration // max distance of a part from the target (default: 3 days)
}

// DefaultSplitConfig returns sensible defaults
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		MaxParts:      4,
		MaxCandidates: 12,
		Tolerance:     0,
		DateSpan:      3 * day,
	}
}

// Validate checks the split config.
func (c SplitConfig) Validate() error {
	if c.MaxParts < 2 {
		return fmt.Errorf("split max parts must be at least 2, got %d", c.MaxParts)
	}
	if c.MaxCandidates < c.MaxParts {
		return fmt.Errorf("split max candidates (%d) must be at least max parts (%d)", c.MaxCandidates, c.MaxParts)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("split tolerance must not be negative")
	}
	if c.DateSpan < 0 {
		return fmt.Errorf("split date span must not be negative")
	}
	return nil
}

// SplitResult is a set of parts whose amounts sum to a target record.
type SplitResult struct {
	Target *ledger.NormalizedTransaction
	Parts  []*ledger.NormalizedTransaction // sorted by external id

	Sum          int64 // magnitude of the parts, in the amounts that were matched
	Delta        int64 // |Sum - |target||
	NetOfFees    bool  // parts were summed after their known fees
	DateDistance time.Duration

	SubScores ledger.SubScores
	Score     float64
}

// Exact reports whether the parts close the target to the minor unit.
func (r *SplitResult) Exact() bool {
	return r.Delta == 0
}

// FindSplit looks for two or more records in pool that together account for
// target. Pool records must be on the opposite side; anything in a different
// currency, sign or outside the date span is ignored. Returns nil when no
// split closes within tolerance.
func (m *Matcher) FindSplit(target *ledger.NormalizedTransaction, pool []*ledger.NormalizedTransaction, cfg SplitConfig) *SplitResult {
	parts := m.splitPool(target, pool, cfg)
	if len(parts) < 2 {
		return nil
	}

	gross := func(p *ledger.NormalizedTransaction) int64 { return absInt(p.AmountMinor) }
	if res := m.searchSplit(target, parts, cfg, gross); res != nil {
		return m.scoreSplit(res)
	}

	// A batched payout lands net of each charge's fee.
	hasFees := false
	for _, p := range parts {
		if p.FeeAdjustedAmount != nil {
			hasFees = true
			break
		}
	}
	if !hasFees {
		return nil
	}
	net := func(p *ledger.NormalizedTransaction) int64 {
		if p.FeeAdjustedAmount != nil {
			return absInt(*p.FeeAdjustedAmount)
		}
		return absInt(p.AmountMinor)
	}
	if res := m.searchSplit(target, parts, cfg, net); res != nil {
		res.NetOfFees = true
		return m.scoreSplit(res)
	}
	return nil
}

func (m *Matcher) splitPool(target *ledger.NormalizedTransaction, pool []*ledger.NormalizedTransaction, cfg SplitConfig) []*ledger.NormalizedTransaction {
	targetAbs := absInt(target.AmountMinor)
	targetSign := target.AmountMinor > 0

	var parts []*ledger.NormalizedTransaction
	for _, p := range pool {
		if p.Invalid || p.Side == target.Side || p.Currency != target.Currency {
			continue
		}
		if p.AmountMinor == 0 || (p.AmountMinor > 0) != targetSign {
			continue
		}
		if absInt(p.AmountMinor) >= targetAbs+cfg.Tolerance {
			continue
		}
		if dateDelta(target, p) > cfg.DateSpan {
			continue
		}
		parts = append(parts, p)
	}

	// Keep the closest in time when the pool is large.
	sort.Slice(parts, func(i, j int) bool {
		di, dj := dateDelta(target, parts[i]), dateDelta(target, parts[j])
		if di != dj {
			return di < dj
		}
		return parts[i].ExternalID < parts[j].ExternalID
	})
	if len(parts) > cfg.MaxCandidates {
		parts = parts[:cfg.MaxCandidates]
	}
	return parts
}

type splitCandidate struct {
	parts        []*ledger.NormalizedTransaction
	sum          int64
	delta        int64
	dateDistance time.Duration
	key          string
}

func (c *splitCandidate) better(o *splitCandidate) bool {
	if o == nil {
		return true
	}
	if c.delta != o.delta {
		return c.delta < o.delta
	}
	if len(c.parts) != len(o.parts) {
		return len(c.parts) < len(o.parts)
	}
	if c.dateDistance != o.dateDistance {
		return c.dateDistance < o.dateDistance
	}
	return c.key < o.key
}

// searchSplit is a bounded depth-first subset-sum search.
func (m *Matcher) searchSplit(
	target *ledger.NormalizedTransaction,
	parts []*ledger.NormalizedTransaction,
	cfg SplitConfig,
	amountOf func(*ledger.NormalizedTransaction) int64,
) *SplitResult {
	goal := absInt(target.AmountMinor)

	ordered := make([]*ledger.NormalizedTransaction, len(parts))
	copy(ordered, parts)
	sort.Slice(ordered, func(i, j int) bool {
		ai, aj := amountOf(ordered[i]), amountOf(ordered[j])
		if ai != aj {
			return ai > aj
		}
		return ordered[i].ExternalID < ordered[j].ExternalID
	})

	// suffix[i] is the sum of amounts from i to the end, for pruning.
	suffix := make([]int64, len(ordered)+1)
	for i := len(ordered) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + amountOf(ordered[i])
	}

	var best *splitCandidate
	chosen := make([]*ledger.NormalizedTransaction, 0, cfg.MaxParts)

	var dfs func(start int, sum int64)
	dfs = func(start int, sum int64) {
		if len(chosen) >= 2 {
			delta := absInt(sum - goal)
			if delta <= cfg.Tolerance {
				cand := newSplitCandidate(target, chosen, sum, delta)
				if cand.better(best) {
					best = cand
				}
			}
		}
		if len(chosen) == cfg.MaxParts {
			return
		}
		for i := start; i < len(ordered); i++ {
			next := sum + amountOf(ordered[i])
			if next > goal+cfg.Tolerance {
				continue
			}
			if sum+suffix[i] < goal-cfg.Tolerance {
				return
			}
			chosen = append(chosen, ordered[i])
			dfs(i+1, next)
			chosen = chosen[:len(chosen)-1]
		}
	}
	dfs(0, 0)

	if best == nil {
		return nil
	}
	return &SplitResult{
		Target:       target,
		Parts:        best.parts,
		Sum:          best.sum,
		Delta:        best.delta,
		DateDistance: best.dateDistance,
	}
}

func newSplitCandidate(target *ledger.NormalizedTransaction, chosen []*ledger.NormalizedTransaction, sum, delta int64) *splitCandidate {
	parts := make([]*ledger.NormalizedTransaction, len(chosen))
	copy(parts, chosen)
	sort.Slice(parts, func(i, j int) bool { return parts[i].ExternalID < parts[j].ExternalID })

	var distance time.Duration
	ids := make([]string, len(parts))
	for i, p := range parts {
		distance += dateDelta(target, p)
		ids[i] = p.ExternalID
	}
	return &splitCandidate{
		parts:        parts,
		sum:          sum,
		delta:        delta,
		dateDistance: distance,
		key:          strings.Join(ids, ","),
	}
}

// scoreSplit rates a split like a pair: amount from the sum, timing from the
// furthest part, description from the best part.
func (m *Matcher) scoreSplit(res *SplitResult) *SplitResult {
	target := res.Target
	res.SubScores.Amount = m.amountScore(absInt(target.AmountMinor), res.Sum)
	res.SubScores.Timing = 1
	res.SubScores.Description = 0

	counterparty := 1.0
	haveCounterparty := target.CounterpartyKey != ""
	for _, p := range res.Parts {
		res.SubScores.Timing = min(res.SubScores.Timing, m.timingScore(target, p, dateDelta(target, p)))
		res.SubScores.Description = max(res.SubScores.Description, DescriptionScore(target.DescriptionKey, p.DescriptionKey))
		if p.CounterpartyKey == "" {
			haveCounterparty = false
		} else if haveCounterparty {
			counterparty = min(counterparty, CounterpartyScore(target.CounterpartyKey, p.CounterpartyKey))
		}
	}
	if haveCounterparty {
		res.SubScores.Counterparty = &counterparty
	}
	res.Score = m.Combine(res.SubScores)
	return res
}
