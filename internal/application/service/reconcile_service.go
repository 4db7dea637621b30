package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

var (
	// ErrRunInProgress is returned when the account already has a run going.
	ErrRunInProgress = errors.New("reconciliation already running for account")
	// ErrInvalidRequest is returned for requests the service cannot act on.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound and ErrAlreadyResolved are the storage sentinels, re-exported
	// so callers need not import storage.
	ErrNotFound        = storage.ErrNotFound
	ErrAlreadyResolved = storage.ErrAlreadyResolved
)

// DefaultExplainTimeout bounds a single explanation request.
const DefaultExplainTimeout = 10 * time.Second

// Explainer turns a match into human-readable prose. Its output is advisory
// and never feeds a decision.
type Explainer interface {
	Explain(ctx context.Context, match ledger.Match, discrepancies []ledger.Discrepancy) (string, error)
}

// Config holds service configuration.
type Config struct {
	Engine         reconcile.Config
	ExplainTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Engine:         reconcile.DefaultConfig(),
		ExplainTimeout: DefaultExplainTimeout,
	}
}

// TriggerRequest holds the raw feeds of one reconciliation run.
type TriggerRequest struct {
	AccountID string
	SideA     []ledger.RawTransaction
	SideB     []ledger.RawTransaction
	AsOf      time.Time // zero means now
}

// RunSummary is what a completed run reports back.
type RunSummary struct {
	RunID         string                   `json:"run_id"`
	AccountID     string                   `json:"account_id"`
	AsOf          time.Time                `json:"as_of"`
	Stats         reconcile.Stats          `json:"stats"`
	Matches       []ledger.Match           `json:"matches"`
	Discrepancies []ledger.Discrepancy     `json:"discrepancies"`
	Reaffirmed    []string                 `json:"reaffirmed"`
	Superseded    []reconcile.Supersession `json:"superseded"`
}

// MatchDetail is a match with everything recorded against it.
type MatchDetail struct {
	Match         ledger.Match         `json:"match"`
	Discrepancies []ledger.Discrepancy `json:"discrepancies"`
	Resolutions   []ledger.Resolution  `json:"resolutions"`
}

// ResolveRequest is an operator's decision on one discrepancy.
type ResolveRequest struct {
	DiscrepancyID    string
	Action           ledger.ResolutionAction
	Notes            string
	AdjustmentAmount *int64
	ResolvedBy       string
}

// ResolveResult reports the recorded resolution and the match status after it.
type ResolveResult struct {
	Resolution  ledger.Resolution `json:"resolution"`
	MatchStatus ledger.Status     `json:"match_status"`
}

// Explanation sources
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Explanation is the prose attached to a match.
type Explanation struct {
	MatchID string `json:"match_id"`
	Text    string `json:"text"`
	Source  string `json:"source"`
}

// ReconcileService runs reconciliations and manages their outcome.
type ReconcileService struct {
	cfg          Config
	repo         storage.Repository
	orchestrator *reconcile.Orchestrator
	explainer    Explainer
	logger       *slog.Logger
	now          func() time.Time

	// Account-level locking (only one run per account at a time)
	accountLocks map[string]*sync.Mutex
	locksMutex   sync.Mutex
}

// NewReconcileService creates a new reconcile service. A nil explainer
// means explanations always use the deterministic fallback.
func NewReconcileService(cfg Config, repo storage.Repository, explainer Explainer, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ExplainTimeout <= 0 {
		cfg.ExplainTimeout = DefaultExplainTimeout
	}
	return &ReconcileService{
		cfg:          cfg,
		repo:         repo,
		orchestrator: reconcile.NewOrchestrator(logger.With("system", "reconcile")),
		explainer:    explainer,
		logger:       logger,
		now:          time.Now,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// Trigger normalizes both feeds, reconciles them against the account's
// persisted matches and stores the outcome. A second call for the same
// account while one is running fails with ErrRunInProgress.
func (s *ReconcileService) Trigger(ctx context.Context, req TriggerRequest) (*RunSummary, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidRequest)
	}
	sideA, err := assignSide(req.SideA, ledger.SideA)
	if err != nil {
		return nil, err
	}
	sideB, err := assignSide(req.SideB, ledger.SideB)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	if !s.tryLockAccount(req.AccountID) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, req.AccountID)
	}
	defer s.unlockAccount(req.AccountID)

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = asOf.UTC()

	norm := normalizer.New(s.cfg.Engine.NormalizerConfig(asOf))

	prior, err := s.repo.ActiveMatches(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load prior matches: %w", err)
	}

	run := &storage.Run{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		StartedAt: s.now().UTC(),
		AsOf:      asOf,
	}
	if err := s.repo.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	result, err := s.orchestrator.Run(ctx, reconcile.Request{
		AccountID: req.AccountID,
		SideA:     norm.NormalizeAll(sideA),
		SideB:     norm.NormalizeAll(sideB),
		Prior:     prior,
		Config:    s.cfg.Engine,
		AsOf:      asOf,
	})
	if err != nil {
		s.failRun(ctx, run.ID, err)
		return nil, err
	}

	for i := range result.Matches {
		result.Matches[i].RunID = run.ID
	}

	if err := s.repo.ApplyRun(ctx, run.ID, result); err != nil {
		s.failRun(ctx, run.ID, err)
		return nil, fmt.Errorf("persist run: %w", err)
	}

	s.logger.Info("reconciliation stored",
		"run_id", run.ID,
		"account_id", req.AccountID,
		"matches", len(result.Matches),
		"discrepancies", len(result.Discrepancies),
		"reaffirmed", len(result.Reaffirmed),
		"superseded", len(result.Superseded),
	)

	return &RunSummary{
		RunID:         run.ID,
		AccountID:     req.AccountID,
		AsOf:          asOf,
		Stats:         result.Stats,
		Matches:       result.Matches,
		Discrepancies: result.Discrepancies,
		Reaffirmed:    result.Reaffirmed,
		Superseded:    result.Superseded,
	}, nil
}

// failRun records a failed run. It uses a context detached from ctx so a
// cancelled request still leaves a failed run behind.
func (s *ReconcileService) failRun(ctx context.Context, runID string, cause error) {
	if err := s.repo.FailRun(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
		s.logger.Error("failed to record run failure", "run_id", runID, "error", err)
	}
	s.logger.Warn("reconciliation failed", "run_id", runID, "error", cause)
}

// assignSide fills in the side of records that omit it and rejects records
// filed under the wrong side.
func assignSide(raws []ledger.RawTransaction, side ledger.Side) ([]ledger.RawTransaction, error) {
	out := make([]ledger.RawTransaction, len(raws))
	for i, raw := range raws {
		if raw.Side == "" {
			raw.Side = side
		}
		if raw.Side != side {
			return nil, fmt.Errorf("%w: record %q has side %q in the %s feed", ErrInvalidRequest, raw.ExternalID, raw.Side, side)
		}
		out[i] = raw
	}
	return out, nil
}

// ListMatches returns matches matching the filters.
func (s *ReconcileService) ListMatches(ctx context.Context, filters storage.MatchFilters) (*storage.MatchListResult, error) {
	result, err := s.repo.ListMatches(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return result, nil
}

// GetMatch returns a match with its discrepancies and resolutions.
func (s *ReconcileService) GetMatch(ctx context.Context, id string) (*MatchDetail, error) {
	match, err := s.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	discrepancies, err := s.repo.DiscrepanciesForMatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load discrepancies: %w", err)
	}
	resolutions, err := s.repo.ListResolutions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load resolutions: %w", err)
	}
	if resolutions == nil {
		resolutions = []ledger.Resolution{}
	}
	return &MatchDetail{
		Match:         *match,
		Discrepancies: discrepancies,
		Resolutions:   resolutions,
	}, nil
}

// ListDiscrepancies returns discrepancies matching the filters.
func (s *ReconcileService) ListDiscrepancies(ctx context.Context, filters storage.DiscrepancyFilters) (*storage.DiscrepancyListResult, error) {
	result, err := s.repo.ListDiscrepancies(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	return result, nil
}

// Resolve records an operator decision on a discrepancy. Once every
// discrepancy of a match is closed the match moves to the status the last
// action implies: IGNORED for ignore_permanently, RESOLVED otherwise.
func (s *ReconcileService) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	if req.DiscrepancyID == "" {
		return nil, fmt.Errorf("%w: discrepancy id is required", ErrInvalidRequest)
	}
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action)
	}
	if req.Action == ledger.ActionAdjustAmount && req.AdjustmentAmount == nil {
		return nil, fmt.Errorf("%w: adjust_amount needs an adjustment amount", ErrInvalidRequest)
	}

	d, err := s.repo.GetDiscrepancy(ctx, req.DiscrepancyID)
	if err != nil {
		return nil, err
	}
	if d.Status != ledger.DiscrepancyOpen {
		return nil, fmt.Errorf("discrepancy %s: %w", d.ID, ErrAlreadyResolved)
	}

	match, err := s.repo.GetMatch(ctx, d.MatchID)
	if err != nil {
		return nil, err
	}
	if !match.Active() {
		return nil, fmt.Errorf("match %s was superseded by %s: %w", match.ID, match.SupersededBy, ledger.ErrInvalidTransition)
	}

	siblings, err := s.repo.DiscrepanciesForMatch(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("load discrepancies: %w", err)
	}
	stillOpen := 0
	for _, sib := range siblings {
		if sib.ID != d.ID && sib.Status == ledger.DiscrepancyOpen {
			stillOpen++
		}
	}

	// The repository makes the final open-count check, so a sibling resolved
	// concurrently still lets this resolution close the match.
	closeTo, err := ledger.Transition(match.Status, req.Action.TargetStatus())
	if err != nil {
		if stillOpen == 0 {
			return nil, fmt.Errorf("match %s: %w", match.ID, err)
		}
		closeTo = ""
	}

	res := ledger.Resolution{
		ID:               uuid.NewString(),
		DiscrepancyID:    d.ID,
		MatchID:          match.ID,
		Action:           req.Action,
		Notes:            req.Notes,
		AdjustmentAmount: req.AdjustmentAmount,
		ResolvedBy:       req.ResolvedBy,
		ResolvedAt:       s.now().UTC(),
	}
	status, err := s.repo.SaveResolution(ctx, &res, closeTo)
	if err != nil {
		return nil, fmt.Errorf("save resolution: %w", err)
	}

	s.logger.Info("discrepancy resolved",
		"discrepancy_id", d.ID,
		"match_id", match.ID,
		"action", req.Action,
		"match_status", status,
	)

	return &ResolveResult{Resolution: res, MatchStatus: status}, nil
}

// Explain returns prose for a match. The explainer gets ExplainTimeout; on
// timeout, failure or an empty answer the deterministic description is used.
func (s *ReconcileService) Explain(ctx context.Context, matchID string) (*Explanation, error) {
	detail, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	fallback := &Explanation{
		MatchID: matchID,
		Text:    Describe(detail.Match, detail.Discrepancies),
		Source:  SourceFallback,
	}
	if s.explainer == nil {
		return fallback, nil
	}

	explainCtx, cancel := context.WithTimeout(ctx, s.cfg.ExplainTimeout)
	defer cancel()

	text, err := s.explainer.Explain(explainCtx, detail.Match, detail.Discrepancies)
	if err != nil {
		s.logger.Warn("explainer failed, using fallback", "match_id", matchID, "error", err)
		return fallback, nil
	}
	if text == "" {
		return fallback, nil
	}
	return &Explanation{MatchID: matchID, Text: text, Source: SourceAI}, nil
}

// ListRuns returns the most recent runs of an account.
func (s *ReconcileService) ListRuns(ctx context.Context, accountID string, limit int) ([]storage.Run, error) {
	runs, err := s.repo.ListRuns(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// tryLockAccount attempts to acquire the lock for an account.
func (s *ReconcileService) tryLockAccount(accountID string) bool {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if _, exists := s.accountLocks[accountID]; !exists {
		s.accountLocks[accountID] = &sync.Mutex{}
	}

	return s.accountLocks[accountID].TryLock()
}

// unlockAccount releases the lock for an account.
func (s *ReconcileService) unlockAccount(accountID string) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if lock, exists := s.accountLocks[accountID]; exists {
		lock.Unlock()
	}
}
