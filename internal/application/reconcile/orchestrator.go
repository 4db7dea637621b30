// Package reconcile runs one reconciliation pass over an account's two
// ledgers and produces the matches and discrepancies to persist.
//
// A run moves every admitted record through the status machine:
//
//	UNMATCHED -> CANDIDATE -> SCORED -> MATCHED | DISCREPANT
//
// Records without any candidate go straight from UNMATCHED to DISCREPANT.
// Prior matches that are MATCHED, RESOLVED or IGNORED keep their records out
// of the run entirely; prior DISCREPANT matches are recomputed and either
// reaffirmed or superseded.
//
// Example usage:
//
//	o := reconcile.NewOrchestrator(logger)
//	result, err := o.Run(ctx, reconcile.Request{
//		AccountID: "acct_1",
//		SideA:     charges,
//		SideB:     deposits,
//		Prior:     prior,
//		Config:    reconcile.DefaultConfig(),
//		AsOf:      time.Now(),
//	})
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/candidates"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/classifier"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
)

// Orchestrator runs reconciliation passes. It holds no per-run state and is
// safe for concurrent use; serializing runs per account is the caller's job.
type Orchestrator struct {
	logger *slog.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{logger: logger}
}

// outcome is a classified group of records before it becomes a Match.
type outcome struct {
	sideA      []string
	sideB      []string
	confidence float64
	subScores  ledger.SubScores
	class      classifier.Classification
}

func (o *outcome) refs() []ledger.Ref {
	refs := make([]ledger.Ref, 0, len(o.sideA)+len(o.sideB))
	for _, id := range o.sideA {
		refs = append(refs, ledger.Ref{Side: ledger.SideA, ExternalID: id})
	}
	for _, id := range o.sideB {
		refs = append(refs, ledger.Ref{Side: ledger.SideB, ExternalID: id})
	}
	return refs
}

type run struct {
	req        Request
	cfg        Config
	logger     *slog.Logger
	matcher    *matcher.Matcher
	classifier *classifier.Classifier
	tracker    *tracker
	stats      Stats

	valid   map[ledger.Side][]*ledger.NormalizedTransaction
	invalid []*ledger.NormalizedTransaction
	index   *candidates.Index

	pairsByA [][]matcher.ScoredPair
	nearB    map[string][]matcher.ScoredPair

	assigned map[ledger.Ref]bool
	outcomes []*outcome
}

// Run reconciles one account. It returns ErrInvalidConfig before touching any
// record when the config is unusable, and ctx.Err() when cancelled; in both
// cases nothing is returned for persistence.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		return nil, errors.New("account id is required")
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}

	r := &run{
		req:        req,
		cfg:        req.Config,
		logger:     o.logger.With("account_id", req.AccountID),
		matcher:    matcher.NewMatcher(req.Config.matcherConfig()),
		classifier: classifier.New(req.Config.Classifier),
		tracker:    newTracker(),
		valid:      make(map[ledger.Side][]*ledger.NormalizedTransaction),
		nearB:      make(map[string][]matcher.ScoredPair),
		assigned:   make(map[ledger.Ref]bool),
	}

	r.logger.Info("Starting reconciliation",
		"side_a", len(req.SideA),
		"side_b", len(req.SideB),
		"prior_matches", len(req.Prior),
	)

	settled, _ := indexPrior(req.Prior)
	r.admit(req.SideA, ledger.SideA, settled)
	r.admit(req.SideB, ledger.SideB, settled)

	if err := r.score(ctx); err != nil {
		r.logger.Warn("Reconciliation aborted during scoring", "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.assign()
	r.findSplits(ledger.SideA)
	r.findSplits(ledger.SideB)
	r.classifyLeftovers()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := r.finish(started)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Reconciliation complete",
		"new_matches", len(result.Matches),
		"reaffirmed", len(result.Reaffirmed),
		"superseded", len(result.Superseded),
		"exact", result.Stats.Exact,
		"fuzzy", result.Stats.Fuzzy,
		"split", result.Stats.Split,
		"unmatched", result.Stats.Unmatched,
		"duration_ms", result.Stats.DurationMS,
	)
	return result, nil
}

// indexPrior returns the refs held by settled prior matches and, for refs
// held by active DISCREPANT matches, the owning match id.
func indexPrior(prior []ledger.Match) (settled map[ledger.Ref]bool, discrepant map[ledger.Ref]string) {
	settled = make(map[ledger.Ref]bool)
	discrepant = make(map[ledger.Ref]string)
	for i := range prior {
		m := &prior[i]
		if !m.Active() {
			continue
		}
		for _, ref := range m.Refs() {
			if m.Status.Settled() {
				settled[ref] = true
			} else if m.Status == ledger.StatusDiscrepant {
				discrepant[ref] = m.ID
			}
		}
	}
	return settled, discrepant
}

// admit copies one side's records into the run, dropping duplicates and
// records already settled by a prior run.
func (r *run) admit(records []ledger.NormalizedTransaction, side ledger.Side, settled map[ledger.Ref]bool) {
	seen := make(map[string]bool, len(records))
	for i := range records {
		rec := records[i]
		if rec.Side != side {
			rec.Invalid = true
			rec.InvalidReason = fmt.Sprintf("record for %s supplied as %s", rec.Side, side)
			rec.Side = side
		}
		if rec.ExternalID == "" {
			r.stats.Invalid++
			r.logger.Warn("Dropping record without external id", "side", side, "reason", rec.InvalidReason)
			continue
		}
		if seen[rec.ExternalID] {
			r.stats.Duplicates++
			r.logger.Warn("Dropping duplicate record", "side", side, "external_id", rec.ExternalID)
			continue
		}
		seen[rec.ExternalID] = true

		ref := rec.Ref()
		if settled[ref] {
			r.stats.Excluded++
			continue
		}

		r.tracker.enter(ref)
		if rec.Invalid {
			r.stats.Invalid++
			r.invalid = append(r.invalid, &rec)
			continue
		}
		r.valid[side] = append(r.valid[side], &rec)
		if side == ledger.SideA {
			r.stats.SideA++
			r.stats.TotalA += rec.AmountMinor
		} else {
			r.stats.SideB++
			r.stats.TotalB += rec.AmountMinor
		}
	}
}

// score builds the candidate index and scores every candidate pair. Batches
// of side-A records are scored concurrently; cancellation is checked between
// batches.
func (r *run) score(ctx context.Context) error {
	as, bs := r.valid[ledger.SideA], r.valid[ledger.SideB]
	r.index = candidates.Build(r.cfg.Candidates, as, bs)

	r.pairsByA = make([][]matcher.ScoredPair, len(as))
	overflowA := make([]bool, len(as))
	overflowB := make([]bool, len(bs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	batch := r.cfg.BatchSize
	for start := 0; start < len(as); start += batch {
		if err := gctx.Err(); err != nil {
			break
		}
		end := min(start+batch, len(as))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				cands, overflow := r.index.CandidatesFor(as[i])
				overflowA[i] = overflow
				pairs := make([]matcher.ScoredPair, 0, len(cands))
				for _, b := range cands {
					pairs = append(pairs, r.matcher.Score(as[i], b))
				}
				r.pairsByA[i] = pairs
			}
			return nil
		})
	}
	for start := 0; start < len(bs); start += batch {
		if err := gctx.Err(); err != nil {
			break
		}
		end := min(start+batch, len(bs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				_, overflowB[i] = r.index.CandidatesFor(bs[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	overflowed := make(map[string]bool)
	for i, b := range bs {
		if overflowB[i] {
			overflowed[b.ExternalID] = true
			r.stats.Overflowed++
		}
	}

	for i, a := range as {
		if overflowA[i] {
			r.stats.Overflowed++
		}
		pairs := r.pairsByA[i]
		if len(pairs) > 0 {
			r.mustCandidate(a.Ref())
		}
		for j := range pairs {
			p := &pairs[j]
			p.Overflow = overflowA[i] || overflowed[p.B.ExternalID]
			r.mustCandidate(p.B.Ref())
			r.nearB[p.B.ExternalID] = append(r.nearB[p.B.ExternalID], *p)
		}
		r.stats.CandidatePairs += len(pairs)
	}

	r.logger.Debug("Scored candidate pairs",
		"pairs", r.stats.CandidatePairs,
		"overflowed", r.stats.Overflowed,
	)
	return nil
}

func (r *run) mustCandidate(ref ledger.Ref) {
	// Only UNMATCHED records move; the machine allows that step.
	_ = r.tracker.candidate(ref)
}

// assign runs the global greedy commit and classifies each committed pair.
func (r *run) assign() {
	var all []matcher.ScoredPair
	for _, pairs := range r.pairsByA {
		all = append(all, pairs...)
	}

	committed := r.matcher.Assign(all)
	for i := range committed {
		p := &committed[i]
		r.assigned[p.A.Ref()] = true
		r.assigned[p.B.Ref()] = true
		r.outcomes = append(r.outcomes, &outcome{
			sideA:      []string{p.A.ExternalID},
			sideB:      []string{p.B.ExternalID},
			confidence: p.Score,
			subScores:  p.SubScores,
			class:      r.classifier.Classify(p),
		})
	}

	r.logger.Debug("Committed pairs", "count", len(committed))
}

// findSplits looks for unassigned records on side that are paid out as
// several records on the other side.
func (r *run) findSplits(side ledger.Side) {
	var targets []*ledger.NormalizedTransaction
	for _, rec := range r.valid[side] {
		if !r.assigned[rec.Ref()] {
			targets = append(targets, rec)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].AbsAmount() != targets[j].AbsAmount() {
			return targets[i].AbsAmount() > targets[j].AbsAmount()
		}
		return targets[i].ExternalID < targets[j].ExternalID
	})

	found := 0
	for _, target := range targets {
		if r.assigned[target.Ref()] {
			continue
		}
		window, _ := r.index.WithinWindow(target)
		pool := make([]*ledger.NormalizedTransaction, 0, len(window))
		for _, rec := range window {
			if !r.assigned[rec.Ref()] {
				pool = append(pool, rec)
			}
		}

		res := r.matcher.FindSplit(target, pool, r.cfg.Split)
		if res == nil {
			continue
		}
		found++

		parts := make([]string, len(res.Parts))
		for i, p := range res.Parts {
			parts[i] = p.ExternalID
			r.assigned[p.Ref()] = true
			r.mustCandidate(p.Ref())
		}
		r.assigned[target.Ref()] = true
		r.mustCandidate(target.Ref())

		out := &outcome{
			confidence: res.Score,
			subScores:  res.SubScores,
			class:      r.classifier.ClassifySplit(res),
		}
		if side == ledger.SideA {
			out.sideA, out.sideB = []string{target.ExternalID}, parts
		} else {
			out.sideA, out.sideB = parts, []string{target.ExternalID}
		}
		r.outcomes = append(r.outcomes, out)
	}

	if found > 0 {
		r.logger.Debug("Found split matches", "target_side", side, "count", found)
	}
}

// classifyLeftovers turns every record still unassigned into an UNMATCHED outcome.
func (r *run) classifyLeftovers() {
	for i, a := range r.valid[ledger.SideA] {
		if r.assigned[a.Ref()] {
			continue
		}
		r.outcomes = append(r.outcomes, &outcome{
			sideA: []string{a.ExternalID},
			class: r.classifier.ClassifyUnmatched(a, r.pairsByA[i], r.req.AsOf),
		})
	}
	for _, b := range r.valid[ledger.SideB] {
		if r.assigned[b.Ref()] {
			continue
		}
		r.outcomes = append(r.outcomes, &outcome{
			sideB: []string{b.ExternalID},
			class: r.classifier.ClassifyUnmatched(b, r.nearB[b.ExternalID], r.req.AsOf),
		})
	}
	for _, rec := range r.invalid {
		out := &outcome{class: r.classifier.ClassifyInvalid(rec)}
		if rec.Side == ledger.SideA {
			out.sideA = []string{rec.ExternalID}
		} else {
			out.sideB = []string{rec.ExternalID}
		}
		r.outcomes = append(r.outcomes, out)
	}
}

// finish settles record states, builds matches and reconciles them with the
// prior matches.
func (r *run) finish(started time.Time) (*Result, error) {
	req := r.req
	_, discrepantByRef := indexPrior(req.Prior)
	priorActive := make(map[string]*ledger.Match)
	for i := range req.Prior {
		if req.Prior[i].Active() {
			priorActive[req.Prior[i].ID] = &req.Prior[i]
		}
	}

	type built struct {
		match    ledger.Match
		findings []classifier.Finding
	}
	matches := make([]built, 0, len(r.outcomes))

	for _, out := range r.outcomes {
		status := out.class.Status()
		for _, ref := range out.refs() {
			if err := r.tracker.settle(ref, status); err != nil {
				return nil, fmt.Errorf("settle record: %w", err)
			}
		}

		id := matchID(req.AccountID, out.class.Kind, out.sideA, out.sideB, out.class.Findings)
		m := ledger.Match{
			ID:         id,
			AccountID:  req.AccountID,
			SideARefs:  sortedCopy(out.sideA),
			SideBRefs:  sortedCopy(out.sideB),
			Confidence: out.confidence,
			SubScores:  out.subScores,
			Kind:       out.class.Kind,
			Status:     status,
			CreatedAt:  req.AsOf,
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		matches = append(matches, built{match: m, findings: out.class.Findings})
		r.count(out)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].match.ID < matches[j].match.ID })

	result := &Result{}
	superseded := make(map[string]bool)
	for _, b := range matches {
		m := b.match
		if prior, ok := priorActive[m.ID]; ok && prior.Status == m.Status {
			result.Reaffirmed = append(result.Reaffirmed, m.ID)
			continue
		}

		for _, ref := range m.Refs() {
			old, ok := discrepantByRef[ref]
			if !ok || old == m.ID || superseded[old] {
				continue
			}
			superseded[old] = true
			result.Superseded = append(result.Superseded, Supersession{PriorID: old, NewID: m.ID})
		}

		result.Matches = append(result.Matches, m)
		for i, f := range b.findings {
			result.Discrepancies = append(result.Discrepancies, ledger.Discrepancy{
				ID:              discrepancyID(m.ID, i, f.Type),
				MatchID:         m.ID,
				AccountID:       req.AccountID,
				Type:            f.Type,
				Severity:        f.Severity,
				Detail:          f.Detail,
				SuggestedAction: string(f.SuggestedAction),
				Status:          ledger.DiscrepancyOpen,
				CreatedAt:       req.AsOf,
			})
		}
	}

	if err := verifyBijection(req.Prior, result, superseded); err != nil {
		return nil, err
	}

	r.stats.Reaffirmed = len(result.Reaffirmed)
	r.stats.Superseded = len(result.Superseded)
	r.stats.NetDifference = r.stats.TotalA - r.stats.TotalB
	r.stats.DurationMS = time.Since(started).Milliseconds()
	result.Stats = r.stats
	r.rates(&result.Stats)
	return result, nil
}

func (r *run) count(out *outcome) {
	switch out.class.Kind {
	case ledger.KindExact:
		r.stats.Exact++
	case ledger.KindFuzzy:
		r.stats.Fuzzy++
	case ledger.KindPartialSplit:
		r.stats.Split++
	case ledger.KindUnmatched:
		r.stats.Unmatched++
	}
	for _, f := range out.class.Findings {
		switch f.Severity {
		case ledger.SeverityHigh:
			r.stats.High++
		case ledger.SeverityMedium:
			r.stats.Medium++
		default:
			r.stats.Low++
		}
	}
}

// rates fills the side-A match rates from the record states.
func (r *run) rates(s *Stats) {
	if s.SideA == 0 {
		return
	}
	paired, clean := 0, 0
	for _, out := range r.outcomes {
		if out.class.Kind == ledger.KindUnmatched {
			continue
		}
		paired += len(out.sideA)
		if len(out.class.Findings) == 0 {
			clean += len(out.sideA)
		}
	}
	s.MatchRate = float64(paired) / float64(s.SideA)
	s.AutoMatchRate = float64(clean) / float64(s.SideA)
}

// verifyBijection checks that no record is claimed by two active matches
// once the result is applied on top of the prior matches.
func verifyBijection(prior []ledger.Match, result *Result, superseded map[string]bool) error {
	owner := make(map[ledger.Ref]string)
	claim := func(m *ledger.Match) error {
		for _, ref := range m.Refs() {
			if other, ok := owner[ref]; ok && other != m.ID {
				return fmt.Errorf("record %s claimed by matches %s and %s", ref, other, m.ID)
			}
			owner[ref] = m.ID
		}
		return nil
	}

	for i := range prior {
		m := &prior[i]
		if !m.Active() || superseded[m.ID] {
			continue
		}
		if err := claim(m); err != nil {
			return err
		}
	}
	for i := range result.Matches {
		if err := claim(&result.Matches[i]); err != nil {
			return err
		}
	}
	return nil
}

func sortedCopy(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
