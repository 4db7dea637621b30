// Package candidates narrows the cross product of two ledgers down to the
// pairs worth scoring.
//
// Records are bucketed by (sign, log-scale amount band, date window). A lookup
// unions the neighbouring bands and windows of the record's own bucket, so a
// pair that differs by a small percentage or a few days still meets. When a
// lookup would exceed the configured cap the index falls back to exact-amount
// buckets and reports overflow.
package candidates

import (
	"fmt"
	"math"
	"sort"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Config holds candidate index configuration
type Config struct {
	BandRatio   float64 // width of an amount band as a ratio, e.g. 0.05
	WindowDays  int     // width of a date window in days
	WindowReach int     // neighbouring windows searched on each side
	Cap         int     // max candidates per record before exact fallback
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BandRatio:   0.05,
		WindowDays:  7,
		WindowReach: 2,
		Cap:         64,
	}
}

// Validate checks the config for values the index cannot work with.
func (c Config) Validate() error {
	if c.BandRatio <= 0 || c.BandRatio >= 1 {
		return fmt.Errorf("band ratio must be in (0,1), got %v", c.BandRatio)
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window days must be at least 1, got %d", c.WindowDays)
	}
	if c.WindowReach < 0 {
		return fmt.Errorf("window reach must not be negative, got %d", c.WindowReach)
	}
	if c.Cap < 1 {
		return fmt.Errorf("candidate cap must be at least 1, got %d", c.Cap)
	}
	return nil
}

type bucketKey struct {
	sign   int8
	band   int
	window int64
}

type exactKey struct {
	amount int64
	window int64
}

type sideIndex struct {
	bands   map[bucketKey][]*ledger.NormalizedTransaction
	exact   map[exactKey][]*ledger.NormalizedTransaction
	windows map[int64][]*ledger.NormalizedTransaction
}

func newSideIndex() *sideIndex {
	return &sideIndex{
		bands:   make(map[bucketKey][]*ledger.NormalizedTransaction),
		exact:   make(map[exactKey][]*ledger.NormalizedTransaction),
		windows: make(map[int64][]*ledger.NormalizedTransaction),
	}
}

// Index is an immutable lookup structure over both sides of a run.
// It is safe for concurrent reads.
type Index struct {
	config Config
	sides  map[ledger.Side]*sideIndex
}

// Build indexes both sides. Invalid records are skipped.
func Build(config Config, sideA, sideB []*ledger.NormalizedTransaction) *Index {
	idx := &Index{
		config: config,
		sides: map[ledger.Side]*sideIndex{
			ledger.SideA: newSideIndex(),
			ledger.SideB: newSideIndex(),
		},
	}
	for _, rec := range sideA {
		idx.insert(rec)
	}
	for _, rec := range sideB {
		idx.insert(rec)
	}
	return idx
}

func (idx *Index) insert(rec *ledger.NormalizedTransaction) {
	if rec == nil || rec.Invalid {
		return
	}
	si := idx.sides[rec.Side]
	if si == nil {
		return
	}
	window := idx.window(rec)

	for _, amount := range amountsOf(rec) {
		key := bucketKey{sign: sign(amount), band: idx.band(amount), window: window}
		si.bands[key] = appendUnique(si.bands[key], rec)

		ek := exactKey{amount: amount, window: window}
		si.exact[ek] = appendUnique(si.exact[ek], rec)
	}
	si.windows[window] = append(si.windows[window], rec)
}

// CandidatesFor returns opposite-side records worth scoring against rec,
// sorted by external id. overflow is true when the neighbourhood exceeded the
// cap and only exact-amount candidates were returned.
func (idx *Index) CandidatesFor(rec *ledger.NormalizedTransaction) (candidates []*ledger.NormalizedTransaction, overflow bool) {
	if rec == nil || rec.Invalid {
		return nil, false
	}
	other := idx.sides[rec.Side.Opposite()]
	if other == nil {
		return nil, false
	}
	window := idx.window(rec)
	reach := int64(idx.config.WindowReach)

	set := make(map[string]*ledger.NormalizedTransaction)
	for _, amount := range amountsOf(rec) {
		s, b := sign(amount), idx.band(amount)
		for db := -1; db <= 1; db++ {
			for dw := -reach; dw <= reach; dw++ {
				for _, c := range other.bands[bucketKey{sign: s, band: b + db, window: window + dw}] {
					set[c.ExternalID] = c
				}
			}
		}
	}

	if len(set) <= idx.config.Cap {
		return sorted(set), false
	}

	exact := make(map[string]*ledger.NormalizedTransaction)
	for _, amount := range amountsOf(rec) {
		for dw := -reach; dw <= reach; dw++ {
			for _, c := range other.exact[exactKey{amount: amount, window: window + dw}] {
				exact[c.ExternalID] = c
			}
		}
	}
	return sorted(exact), true
}

// WithinWindow returns opposite-side records of the same sign near rec in
// time, regardless of amount. Used for split detection. The result is capped;
// overflow reports truncation.
func (idx *Index) WithinWindow(rec *ledger.NormalizedTransaction) (records []*ledger.NormalizedTransaction, overflow bool) {
	if rec == nil || rec.Invalid {
		return nil, false
	}
	other := idx.sides[rec.Side.Opposite()]
	if other == nil {
		return nil, false
	}
	window := idx.window(rec)
	reach := int64(idx.config.WindowReach)
	s := sign(rec.AmountMinor)

	set := make(map[string]*ledger.NormalizedTransaction)
	for dw := -reach; dw <= reach; dw++ {
		for _, c := range other.windows[window+dw] {
			if sign(c.AmountMinor) == s {
				set[c.ExternalID] = c
			}
		}
	}

	out := sorted(set)
	if len(out) > idx.config.Cap {
		return out[:idx.config.Cap], true
	}
	return out, false
}

func (idx *Index) window(rec *ledger.NormalizedTransaction) int64 {
	size := int64(idx.config.WindowDays) * 86400
	secs := rec.OccurredAt.Unix()
	w := secs / size
	if secs < 0 && secs%size != 0 {
		w--
	}
	return w
}

// band maps a magnitude onto a log scale so each band spans BandRatio.
func (idx *Index) band(amount int64) int {
	mag := amount
	if mag < 0 {
		mag = -mag
	}
	if mag == 0 {
		return math.MinInt32
	}
	return int(math.Floor(math.Log(float64(mag)) / math.Log1p(idx.config.BandRatio)))
}

func amountsOf(rec *ledger.NormalizedTransaction) []int64 {
	if rec.FeeAdjustedAmount != nil && *rec.FeeAdjustedAmount != rec.AmountMinor {
		return []int64{rec.AmountMinor, *rec.FeeAdjustedAmount}
	}
	return []int64{rec.AmountMinor}
}

func sign(v int64) int8 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func appendUnique(list []*ledger.NormalizedTransaction, rec *ledger.NormalizedTransaction) []*ledger.NormalizedTransaction {
	for _, r := range list {
		if r == rec {
			return list
		}
	}
	return append(list, rec)
}

func sorted(set map[string]*ledger.NormalizedTransaction) []*ledger.NormalizedTransaction {
	out := make([]*ledger.NormalizedTransaction, 0, len(set))
	for _, r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}
