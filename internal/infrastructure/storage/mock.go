package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated.
type MockRepository struct {
	mu            sync.Mutex
	matches       map[string]ledger.Match
	discrepancies map[string]ledger.Discrepancy
	resolutions   []ledger.Resolution
	runs          map[string]*Run

	// Hooks for test assertions
	ApplyRunCalls       int
	SaveResolutionCalls int
	LastRunID           string

	// Error injection for testing error paths
	ActiveMatchesErr  error
	StartRunErr       error
	ApplyRunErr       error
	FailRunErr        error
	SaveResolutionErr error
	ListErr           error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		matches:       make(map[string]ledger.Match),
		discrepancies: make(map[string]ledger.Discrepancy),
		runs:          make(map[string]*Run),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// SeedMatch stores a match and its discrepancies directly.
func (m *MockRepository) SeedMatch(match ledger.Match, discrepancies ...ledger.Discrepancy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[match.ID] = match
	for _, d := range discrepancies {
		m.discrepancies[d.ID] = d
	}
}

// ActiveMatches returns every non-superseded match of the account
func (m *MockRepository) ActiveMatches(_ context.Context, accountID string) ([]ledger.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ActiveMatchesErr != nil {
		return nil, m.ActiveMatchesErr
	}
	var out []ledger.Match
	for _, match := range m.matches {
		if match.AccountID == accountID && match.Active() {
			out = append(out, copyMatch(match))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListMatches filters the in-memory matches
func (m *MockRepository) ListMatches(_ context.Context, filters MatchFilters) (*MatchListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var all []ledger.Match
	for _, match := range m.matches {
		if filters.AccountID != "" && match.AccountID != filters.AccountID {
			continue
		}
		if !filters.IncludeSuperseded && !match.Active() {
			continue
		}
		if filters.Status != "" && match.Status != filters.Status {
			continue
		}
		if filters.Kind != "" && match.Kind != filters.Kind {
			continue
		}
		if filters.Severity != "" && !m.hasDiscrepancy(match.ID, func(d ledger.Discrepancy) bool {
			return d.Severity == filters.Severity && d.Status == ledger.DiscrepancyOpen
		}) {
			continue
		}
		if filters.HasDiscrepancy != nil && m.hasDiscrepancy(match.ID, nil) != *filters.HasDiscrepancy {
			continue
		}
		all = append(all, copyMatch(match))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	result := &MatchListResult{
		Matches:    []ledger.Match{},
		TotalCount: len(all),
		Limit:      clampLimit(filters.Limit),
		Offset:     filters.Offset,
	}
	result.Matches = append(result.Matches, page(all, result.Offset, result.Limit)...)
	return result, nil
}

func (m *MockRepository) hasDiscrepancy(matchID string, pred func(ledger.Discrepancy) bool) bool {
	for _, d := range m.discrepancies {
		if d.MatchID == matchID && (pred == nil || pred(d)) {
			return true
		}
	}
	return false
}

// GetMatch retrieves a match from the in-memory map
func (m *MockRepository) GetMatch(_ context.Context, id string) (*ledger.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	c := copyMatch(match)
	return &c, nil
}

// ListDiscrepancies filters discrepancies of active matches
func (m *MockRepository) ListDiscrepancies(_ context.Context, filters DiscrepancyFilters) (*DiscrepancyListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var all []ledger.Discrepancy
	for _, d := range m.discrepancies {
		if match, ok := m.matches[d.MatchID]; !ok || !match.Active() {
			continue
		}
		if filters.AccountID != "" && d.AccountID != filters.AccountID {
			continue
		}
		if filters.Severity != "" && d.Severity != filters.Severity {
			continue
		}
		if filters.Type != "" && d.Type != filters.Type {
			continue
		}
		if filters.Status != "" && d.Status != filters.Status {
			continue
		}
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Severity.Rank() != all[j].Severity.Rank() {
			return all[i].Severity.Rank() > all[j].Severity.Rank()
		}
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	result := &DiscrepancyListResult{
		Discrepancies: []ledger.Discrepancy{},
		TotalCount:    len(all),
		Limit:         clampLimit(filters.Limit),
		Offset:        filters.Offset,
	}
	result.Discrepancies = append(result.Discrepancies, page(all, result.Offset, result.Limit)...)
	return result, nil
}

// GetDiscrepancy retrieves a discrepancy from the in-memory map
func (m *MockRepository) GetDiscrepancy(_ context.Context, id string) (*ledger.Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discrepancies[id]
	if !ok {
		return nil, fmt.Errorf("discrepancy %s: %w", id, ErrNotFound)
	}
	return &d, nil
}

// DiscrepanciesForMatch returns the discrepancies of one match
func (m *MockRepository) DiscrepanciesForMatch(_ context.Context, matchID string) ([]ledger.Discrepancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []ledger.Discrepancy{}
	for _, d := range m.discrepancies {
		if d.MatchID == matchID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveResolution records a resolution in memory
func (m *MockRepository) SaveResolution(_ context.Context, res *ledger.Resolution, closeTo ledger.Status) (ledger.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveResolutionCalls++
	if m.SaveResolutionErr != nil {
		return "", m.SaveResolutionErr
	}

	d, ok := m.discrepancies[res.DiscrepancyID]
	if !ok {
		return "", fmt.Errorf("discrepancy %s: %w", res.DiscrepancyID, ErrNotFound)
	}
	if d.Status != ledger.DiscrepancyOpen {
		return "", fmt.Errorf("discrepancy %s: %w", res.DiscrepancyID, ErrAlreadyResolved)
	}
	d.Status = ledger.DiscrepancyResolved
	m.discrepancies[d.ID] = d
	m.resolutions = append(m.resolutions, *res)

	match := m.matches[res.MatchID]
	if closeTo != "" && !m.hasOpenLocked(res.MatchID) {
		match.Status = closeTo
		at := res.ResolvedAt
		match.ResolvedAt = &at
		m.matches[res.MatchID] = match
	}
	return match.Status, nil
}

func (m *MockRepository) hasOpenLocked(matchID string) bool {
	for _, d := range m.discrepancies {
		if d.MatchID == matchID && d.Status == ledger.DiscrepancyOpen {
			return true
		}
	}
	return false
}

// ListResolutions returns the resolutions of a match
func (m *MockRepository) ListResolutions(_ context.Context, matchID string) ([]ledger.Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Resolution
	for _, r := range m.resolutions {
		if r.MatchID == matchID {
			out = append(out, r)
		}
	}
	return out, nil
}

// StartRun records a run start
func (m *MockRepository) StartRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartRunErr != nil {
		return m.StartRunErr
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	stored := *run
	m.runs[run.ID] = &stored
	m.LastRunID = run.ID
	return nil
}

// ApplyRun stores a run's result
func (m *MockRepository) ApplyRun(_ context.Context, runID string, result *reconcile.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyRunCalls++
	if m.ApplyRunErr != nil {
		return m.ApplyRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	for _, match := range result.Matches {
		match.SupersededBy = ""
		m.matches[match.ID] = copyMatch(match)
	}
	for _, d := range result.Discrepancies {
		if d.Status == "" {
			d.Status = ledger.DiscrepancyOpen
		}
		m.discrepancies[d.ID] = d
	}
	for _, sup := range result.Superseded {
		if prior, ok := m.matches[sup.PriorID]; ok && prior.Active() {
			prior.SupersededBy = sup.NewID
			m.matches[sup.PriorID] = prior
		}
	}

	run.Status = RunCompleted
	run.Stats = result.Stats
	completed := run.StartedAt
	run.CompletedAt = &completed
	return nil
}

// FailRun marks a run as failed
func (m *MockRepository) FailRun(_ context.Context, runID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRunErr != nil {
		return m.FailRunErr
	}
	if run, ok := m.runs[runID]; ok {
		run.Status = RunFailed
		run.ErrorMessage = reason
	}
	return nil
}

// ListRuns returns runs of an account, newest first
func (m *MockRepository) ListRuns(_ context.Context, accountID string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := []Run{}
	for _, r := range m.runs {
		if r.AccountID == accountID {
			runs = append(runs, *r)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return page(runs, 0, clampLimit(limit)), nil
}

// GetRun retrieves a run by ID
func (m *MockRepository) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	c := *r
	return &c, nil
}

func copyMatch(match ledger.Match) ledger.Match {
	match.SideARefs = slices.Clone(match.SideARefs)
	match.SideBRefs = slices.Clone(match.SideBRefs)
	return match
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
