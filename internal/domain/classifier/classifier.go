// Package classifier turns scored pairs, splits and leftover records into a
// match kind plus the discrepancies a reviewer needs to see.
//
// Decision policy, in order:
//  1. score >= Exact with every sub-score at its exact minimum: EXACT
//  2. committed at >= Match otherwise: FUZZY, one finding per cause
//  3. no committed counterpart: UNMATCHED with MISSING_COUNTERPART
//  4. parts summing to one record: PARTIAL_SPLIT, AMOUNT_MISMATCH if the sum is off
//
// Severity depends only on the finding type and its magnitude.
package classifier

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/matcher"
)

// Finding is one discrepancy cause before it is attached to a Match.
type Finding struct {
	Type            ledger.DiscrepancyType
	Severity        ledger.Severity
	Detail          map[string]any
	SuggestedAction ledger.ResolutionAction
}

// Classification is the outcome for one match candidate.
type Classification struct {
	Kind     ledger.MatchKind
	Findings []Finding
}

// Status is the status the owning Match takes. Anything with a finding
// needs review.
func (c Classification) Status() ledger.Status {
	if len(c.Findings) == 0 {
		return ledger.StatusMatched
	}
	return ledger.StatusDiscrepant
}

// Classifier applies the decision policy
type Classifier struct {
	config Config
}

// New creates a classifier with the given config
func New(config Config) *Classifier {
	return &Classifier{config: config}
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify decides the kind of a committed pair and explains any shortfall.
func (c *Classifier) Classify(pair *matcher.ScoredPair) Classification {
	if c.isExact(pair) {
		return Classification{Kind: ledger.KindExact}
	}

	var findings []Finding
	s := pair.SubScores
	floor := c.config.Minimums

	if pair.CurrencyMismatch {
		findings = append(findings, Finding{
			Type:     ledger.CurrencyMismatch,
			Severity: ledger.SeverityHigh,
			Detail: map[string]any{
				"currency_a": pair.A.Currency,
				"currency_b": pair.B.Currency,
			},
			SuggestedAction: ledger.ActionFlagForReview,
		})
	} else if s.Amount < floor.Amount {
		findings = append(findings, c.amountFinding(pair))
	}

	if s.Timing < floor.Timing {
		findings = append(findings, Finding{
			Type:     ledger.TimingMismatch,
			Severity: c.timingSeverity(pair.DateDelta),
			Detail: map[string]any{
				"date_delta_hours": pair.DateDelta.Hours(),
				"occurred_at_a":    pair.A.OccurredAt.Format(time.RFC3339),
				"occurred_at_b":    pair.B.OccurredAt.Format(time.RFC3339),
				"timing_score":     round4(s.Timing),
			},
			SuggestedAction: ledger.ActionMarkAsExpected,
		})
	}

	if pair.Overflow {
		findings = append(findings, Finding{
			Type:     ledger.DuplicateCandidate,
			Severity: ledger.SeverityMedium,
			Detail: map[string]any{
				"reason": "candidate_cap_exceeded",
			},
			SuggestedAction: ledger.ActionFlagForReview,
		})
	}

	if len(findings) == 0 {
		// Amount and date agree but the descriptive fields do not: this may
		// be a different transaction that happens to look the same.
		detail := map[string]any{
			"reason":            "identity_mismatch",
			"description_score": round4(s.Description),
			"score":             round4(pair.Score),
		}
		if s.Counterparty != nil {
			detail["counterparty_score"] = round4(*s.Counterparty)
		}
		findings = append(findings, Finding{
			Type:            ledger.DuplicateCandidate,
			Severity:        ledger.SeverityLow,
			Detail:          detail,
			SuggestedAction: ledger.ActionFlagForReview,
		})
	}

	return Classification{Kind: ledger.KindFuzzy, Findings: findings}
}

func (c *Classifier) isExact(pair *matcher.ScoredPair) bool {
	if pair.CurrencyMismatch || pair.Overflow {
		return false
	}
	if pair.Score < c.config.Thresholds.Exact {
		return false
	}
	s, floor := pair.SubScores, c.config.Minimums
	if s.Amount < floor.Amount || s.Timing < floor.Timing || s.Description < floor.Description {
		return false
	}
	if s.Counterparty != nil && *s.Counterparty < floor.Counterparty {
		return false
	}
	return true
}

func (c *Classifier) amountFinding(pair *matcher.ScoredPair) Finding {
	a, b := pair.A, pair.B
	detail := map[string]any{
		"amount_a":     a.AmountMinor,
		"amount_b":     b.AmountMinor,
		"amount_delta": pair.AmountDelta,
		"currency":     a.Currency,
		"delta_pct":    round4(pct(pair.AmountDelta, a.AmountMinor)),
	}

	if fee, source, ok := c.explainedByFee(a, b); ok {
		detail["fee"] = fee
		detail["fee_source"] = source
		severity := ledger.SeverityLow
		if pct(pair.AmountDelta, a.AmountMinor) > c.config.Severity.AmountHighPct {
			severity = ledger.SeverityMedium
		}
		return Finding{
			Type:            ledger.FeeDifference,
			Severity:        severity,
			Detail:          detail,
			SuggestedAction: ledger.ActionMarkAsExpected,
		}
	}

	return Finding{
		Type:            ledger.AmountMismatch,
		Severity:        c.AmountSeverity(pair.AmountDelta, a.AmountMinor),
		Detail:          detail,
		SuggestedAction: ledger.ActionAdjustAmount,
	}
}

// explainedByFee reports whether side A exceeds side B by a known fee or by
// the configured fee pattern.
func (c *Classifier) explainedByFee(a, b *ledger.NormalizedTransaction) (fee int64, source string, ok bool) {
	if (a.AmountMinor > 0) != (b.AmountMinor > 0) {
		return 0, "", false
	}
	gross, net := a.AbsAmount(), b.AbsAmount()
	if gross <= net {
		return 0, "", false
	}
	delta := gross - net
	slack := c.config.Fee.Slack(gross)

	if a.FeeMinor != nil {
		if absInt(delta-*a.FeeMinor) <= slack {
			return *a.FeeMinor, "recorded", true
		}
		return 0, "", false
	}

	if !c.config.Fee.Enabled() {
		return 0, "", false
	}
	expected := c.config.Fee.Expected(gross)
	if absInt(delta-expected) <= slack {
		return expected, "estimated", true
	}
	return 0, "", false
}

// AmountSeverity grades an amount delta by percentage and absolute size.
func (c *Classifier) AmountSeverity(delta, base int64) ledger.Severity {
	s := c.config.Severity
	p := pct(delta, base)
	switch {
	case p > s.AmountHighPct || delta >= s.AmountHighAbs:
		return ledger.SeverityHigh
	case p > s.AmountMediumPct || delta >= s.AmountMediumAbs:
		return ledger.SeverityMedium
	}
	return ledger.SeverityLow
}

func (c *Classifier) timingSeverity(delta time.Duration) ledger.Severity {
	if delta > c.config.Severity.TimingMediumAfter {
		return ledger.SeverityMedium
	}
	return ledger.SeverityLow
}

// ClassifyUnmatched handles a record with no committed counterpart. near holds
// the record's scored candidates; those at or above MinCandidate are listed as
// possible matches.
func (c *Classifier) ClassifyUnmatched(rec *ledger.NormalizedTransaction, near []matcher.ScoredPair, asOf time.Time) Classification {
	s := c.config.Severity
	amount := rec.AbsAmount()

	severity := ledger.SeverityLow
	switch {
	case amount >= s.MissingHigh:
		severity = ledger.SeverityHigh
	case amount >= s.MissingMedium:
		severity = ledger.SeverityMedium
	}

	detail := map[string]any{
		"side":         string(rec.Side),
		"external_id":  rec.ExternalID,
		"amount_minor": rec.AmountMinor,
		"currency":     rec.Currency,
		"occurred_at":  rec.OccurredAt.Format(time.RFC3339),
	}

	if !asOf.IsZero() {
		age := asOf.Sub(rec.OccurredAt)
		detail["age_days"] = int(age.Hours() / 24)
		if age > s.StaleAfter {
			severity = severity.Raise()
		}
	}

	action := ledger.ActionCreateLedgerEntry
	if rec.Side == ledger.SideB {
		// Ledger entries without a processor record are usually manual
		// deposits; they are never more than MEDIUM.
		severity = severity.Cap(ledger.SeverityMedium)
		action = ledger.ActionFlagForReview
	}

	if possible := c.possibleMatches(rec, near); len(possible) > 0 {
		detail["possible_matches"] = possible
	}

	return Classification{
		Kind: ledger.KindUnmatched,
		Findings: []Finding{{
			Type:            ledger.MissingCounterpart,
			Severity:        severity,
			Detail:          detail,
			SuggestedAction: action,
		}},
	}
}

// PossibleMatch is a near miss listed on an unmatched record.
type PossibleMatch struct {
	ExternalID string  `json:"external_id"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason"`
}

func (c *Classifier) possibleMatches(rec *ledger.NormalizedTransaction, near []matcher.ScoredPair) []PossibleMatch {
	var keep []*matcher.ScoredPair
	for i := range near {
		if near[i].Score >= c.config.Thresholds.MinCandidate {
			keep = append(keep, &near[i])
		}
	}
	sort.SliceStable(keep, func(i, j int) bool { return matcher.Less(keep[i], keep[j]) })
	if len(keep) > c.config.PossibleMatches {
		keep = keep[:c.config.PossibleMatches]
	}

	out := make([]PossibleMatch, 0, len(keep))
	for _, p := range keep {
		other := p.B
		if rec.Side == ledger.SideB {
			other = p.A
		}
		reason := fmt.Sprintf("score %.2f below match threshold %.2f", p.Score, c.config.Thresholds.Match)
		if p.Score >= c.config.Thresholds.Match {
			reason = "counterpart committed to a higher-scoring pair"
		}
		out = append(out, PossibleMatch{
			ExternalID: other.ExternalID,
			Score:      round4(p.Score),
			Reason:     reason,
		})
	}
	return out
}

// ClassifySplit handles a many-to-one match.
func (c *Classifier) ClassifySplit(res *matcher.SplitResult) Classification {
	cls := Classification{Kind: ledger.KindPartialSplit}
	if res.Exact() {
		return cls
	}

	target := res.Target
	cls.Findings = append(cls.Findings, Finding{
		Type:     ledger.AmountMismatch,
		Severity: c.AmountSeverity(res.Delta, target.AmountMinor),
		Detail: map[string]any{
			"target_amount": target.AmountMinor,
			"parts_sum":     res.Sum,
			"amount_delta":  res.Delta,
			"parts":         len(res.Parts),
			"currency":      target.Currency,
			"net_of_fees":   res.NetOfFees,
		},
		SuggestedAction: ledger.ActionAdjustAmount,
	})
	return cls
}

// ClassifyInvalid routes a record the normalizer rejected.
func (c *Classifier) ClassifyInvalid(rec *ledger.NormalizedTransaction) Classification {
	return Classification{
		Kind: ledger.KindUnmatched,
		Findings: []Finding{{
			Type:     ledger.MissingCounterpart,
			Severity: ledger.SeverityMedium,
			Detail: map[string]any{
				"side":           string(rec.Side),
				"external_id":    rec.ExternalID,
				"invalid_reason": rec.InvalidReason,
			},
			SuggestedAction: ledger.ActionFlagForReview,
		}},
	}
}

func pct(delta, base int64) float64 {
	if base == 0 {
		return 1
	}
	return float64(delta) / float64(absInt(base))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
