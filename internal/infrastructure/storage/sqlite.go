package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/ledger-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
)

// Storage provides SQLite database access for runs, matches, discrepancies
// and resolutions. It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection also keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const matchColumns = `m.id, m.account_id, m.run_id, m.kind, m.status, m.confidence,
	m.sub_scores_json, m.side_a_refs_json, m.side_b_refs_json, m.superseded_by,
	m.created_at, m.resolved_at`

func scanMatch(row rowScanner) (ledger.Match, error) {
	var (
		m                       ledger.Match
		subScores, sideA, sideB string
		resolvedAt              sql.NullTime
	)
	err := row.Scan(&m.ID, &m.AccountID, &m.RunID, &m.Kind, &m.Status, &m.Confidence,
		&subScores, &sideA, &sideB, &m.SupersededBy, &m.CreatedAt, &resolvedAt)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(subScores), &m.SubScores); err != nil {
		return m, fmt.Errorf("decode sub scores of match %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(sideA), &m.SideARefs); err != nil {
		return m, fmt.Errorf("decode side A refs of match %s: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(sideB), &m.SideBRefs); err != nil {
		return m, fmt.Errorf("decode side B refs of match %s: %w", m.ID, err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		m.ResolvedAt = &t
	}
	return m, nil
}

const discrepancyColumns = `d.id, d.match_id, d.account_id, d.type, d.severity, d.status,
	d.suggested_action, d.detail_json, d.created_at`

func scanDiscrepancy(row rowScanner) (ledger.Discrepancy, error) {
	var (
		d      ledger.Discrepancy
		detail string
	)
	err := row.Scan(&d.ID, &d.MatchID, &d.AccountID, &d.Type, &d.Severity, &d.Status,
		&d.SuggestedAction, &detail, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(detail), &d.Detail); err != nil {
		return d, fmt.Errorf("decode detail of discrepancy %s: %w", d.ID, err)
	}
	return d, nil
}

// ActiveMatches returns every match of the account not yet superseded
func (s *Storage) ActiveMatches(ctx context.Context, accountID string) ([]ledger.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches m
		WHERE m.account_id = ? AND m.superseded_by = ''
		ORDER BY m.id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query active matches: %w", err)
	}
	defer rows.Close()

	var out []ledger.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMatches returns matches matching the given filters with pagination
func (s *Storage) ListMatches(ctx context.Context, filters MatchFilters) (*MatchListResult, error) {
	var (
		where []string
		args  []any
	)
	if filters.AccountID != "" {
		where = append(where, "m.account_id = ?")
		args = append(args, filters.AccountID)
	}
	if !filters.IncludeSuperseded {
		where = append(where, "m.superseded_by = ''")
	}
	if filters.Status != "" {
		where = append(where, "m.status = ?")
		args = append(args, filters.Status)
	}
	if filters.Kind != "" {
		where = append(where, "m.kind = ?")
		args = append(args, filters.Kind)
	}
	if filters.Severity != "" {
		where = append(where, "EXISTS (SELECT 1 FROM discrepancies d WHERE d.match_id = m.id AND d.severity = ? AND d.status = 'open')")
		args = append(args, filters.Severity)
	}
	if filters.HasDiscrepancy != nil {
		clause := "EXISTS (SELECT 1 FROM discrepancies d WHERE d.match_id = m.id)"
		if !*filters.HasDiscrepancy {
			clause = "NOT " + clause
		}
		where = append(where, clause)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	result := &MatchListResult{
		Matches: []ledger.Match{},
		Limit:   clampLimit(filters.Limit),
		Offset:  filters.Offset,
	}

	countQuery := "SELECT COUNT(*) FROM matches m " + whereSQL
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}

	query := "SELECT " + matchColumns + " FROM matches m " + whereSQL +
		" ORDER BY m.created_at DESC, m.id LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, result.Limit, result.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		result.Matches = append(result.Matches, m)
	}
	return result, rows.Err()
}

// GetMatch retrieves a match by ID
func (s *Storage) GetMatch(ctx context.Context, id string) (*ledger.Match, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches m WHERE m.id = ?", id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListDiscrepancies returns discrepancies of active matches
func (s *Storage) ListDiscrepancies(ctx context.Context, filters DiscrepancyFilters) (*DiscrepancyListResult, error) {
	where := []string{"m.superseded_by = ''"}
	var args []any
	if filters.AccountID != "" {
		where = append(where, "d.account_id = ?")
		args = append(args, filters.AccountID)
	}
	if filters.Severity != "" {
		where = append(where, "d.severity = ?")
		args = append(args, filters.Severity)
	}
	if filters.Type != "" {
		where = append(where, "d.type = ?")
		args = append(args, filters.Type)
	}
	if filters.Status != "" {
		where = append(where, "d.status = ?")
		args = append(args, filters.Status)
	}
	from := " FROM discrepancies d JOIN matches m ON m.id = d.match_id WHERE " + strings.Join(where, " AND ")

	result := &DiscrepancyListResult{
		Discrepancies: []ledger.Discrepancy{},
		Limit:         clampLimit(filters.Limit),
		Offset:        filters.Offset,
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&result.TotalCount); err != nil {
		return nil, fmt.Errorf("count discrepancies: %w", err)
	}

	// HIGH first, then newest
	query := "SELECT " + discrepancyColumns + from + `
		ORDER BY CASE d.severity WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
		         d.created_at DESC, d.id
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, result.Limit, result.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, err
		}
		result.Discrepancies = append(result.Discrepancies, d)
	}
	return result, rows.Err()
}

// GetDiscrepancy retrieves a discrepancy by ID
func (s *Storage) GetDiscrepancy(ctx context.Context, id string) (*ledger.Discrepancy, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+discrepancyColumns+" FROM discrepancies d WHERE d.id = ?", id)
	d, err := scanDiscrepancy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discrepancy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DiscrepanciesForMatch returns every discrepancy of a match
func (s *Storage) DiscrepanciesForMatch(ctx context.Context, matchID string) ([]ledger.Discrepancy, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+discrepancyColumns+" FROM discrepancies d WHERE d.match_id = ? ORDER BY d.id", matchID)
	if err != nil {
		return nil, fmt.Errorf("query discrepancies of match %s: %w", matchID, err)
	}
	defer rows.Close()

	out := []ledger.Discrepancy{}
	for rows.Next() {
		d, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveResolution records a resolution and closes its discrepancy. The open
// count is taken inside the transaction so concurrent resolutions of sibling
// discrepancies cannot both leave the match behind.
func (s *Storage) SaveResolution(ctx context.Context, res *ledger.Resolution, closeTo ledger.Status) (ledger.Status, error) {
	var status ledger.Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		updated, err := tx.ExecContext(ctx, `
			UPDATE discrepancies SET status = 'resolved' WHERE id = ? AND status = 'open'
		`, res.DiscrepancyID)
		if err != nil {
			return fmt.Errorf("close discrepancy: %w", err)
		}
		if n, _ := updated.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM discrepancies WHERE id = ?", res.DiscrepancyID).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return fmt.Errorf("discrepancy %s: %w", res.DiscrepancyID, ErrNotFound)
			}
			return fmt.Errorf("discrepancy %s: %w", res.DiscrepancyID, ErrAlreadyResolved)
		}

		var adjustment sql.NullInt64
		if res.AdjustmentAmount != nil {
			adjustment = sql.NullInt64{Int64: *res.AdjustmentAmount, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO resolutions
			(id, discrepancy_id, match_id, action, notes, adjustment_minor, resolved_by, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, res.ID, res.DiscrepancyID, res.MatchID, res.Action, res.Notes, adjustment, res.ResolvedBy, res.ResolvedAt)
		if err != nil {
			return fmt.Errorf("insert resolution: %w", err)
		}

		if closeTo != "" {
			_, err = tx.ExecContext(ctx, `
				UPDATE matches SET status = ?, resolved_at = ?
				WHERE id = ? AND NOT EXISTS (
					SELECT 1 FROM discrepancies WHERE match_id = ? AND status = 'open'
				)
			`, closeTo, res.ResolvedAt, res.MatchID, res.MatchID)
			if err != nil {
				return fmt.Errorf("update match status: %w", err)
			}
		}

		var current string
		if err := tx.QueryRowContext(ctx, "SELECT status FROM matches WHERE id = ?", res.MatchID).Scan(&current); err != nil {
			return fmt.Errorf("read match status: %w", err)
		}
		status = ledger.Status(current)
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// ListResolutions returns the resolutions recorded against a match
func (s *Storage) ListResolutions(ctx context.Context, matchID string) ([]ledger.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, discrepancy_id, match_id, action, notes, adjustment_minor, resolved_by, resolved_at
		FROM resolutions WHERE match_id = ?
		ORDER BY resolved_at, id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Resolution
	for rows.Next() {
		var (
			r          ledger.Resolution
			adjustment sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.DiscrepancyID, &r.MatchID, &r.Action, &r.Notes, &adjustment, &r.ResolvedBy, &r.ResolvedAt); err != nil {
			return nil, err
		}
		if adjustment.Valid {
			v := adjustment.Int64
			r.AdjustmentAmount = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartRun records the start of a reconciliation run
func (s *Storage) StartRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, account_id, started_at, as_of, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.AccountID, run.StartedAt, run.AsOf, run.Status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ApplyRun persists a run result and completes the run
func (s *Storage) ApplyRun(ctx context.Context, runID string, result *reconcile.Result) error {
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("encode run stats: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range result.Matches {
			if err := upsertMatch(ctx, tx, &result.Matches[i]); err != nil {
				return err
			}
		}
		for i := range result.Discrepancies {
			if err := upsertDiscrepancy(ctx, tx, &result.Discrepancies[i]); err != nil {
				return err
			}
		}
		for _, sup := range result.Superseded {
			_, err := tx.ExecContext(ctx, `
				UPDATE matches SET superseded_by = ? WHERE id = ? AND superseded_by = ''
			`, sup.NewID, sup.PriorID)
			if err != nil {
				return fmt.Errorf("supersede match %s: %w", sup.PriorID, err)
			}
		}

		updated, err := tx.ExecContext(ctx, `
			UPDATE reconciliation_runs
			SET status = ?, completed_at = ?, stats_json = ?
			WHERE id = ?
		`, RunCompleted, time.Now().UTC(), string(statsJSON), runID)
		if err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		if n, _ := updated.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

func upsertMatch(ctx context.Context, tx *sql.Tx, m *ledger.Match) error {
	subScores, err := json.Marshal(m.SubScores)
	if err != nil {
		return err
	}
	sideA, err := json.Marshal(nonNil(m.SideARefs))
	if err != nil {
		return err
	}
	sideB, err := json.Marshal(nonNil(m.SideBRefs))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches
		(id, account_id, run_id, kind, status, confidence, sub_scores_json,
		 side_a_refs_json, side_b_refs_json, superseded_by, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			kind = excluded.kind,
			status = excluded.status,
			confidence = excluded.confidence,
			sub_scores_json = excluded.sub_scores_json,
			side_a_refs_json = excluded.side_a_refs_json,
			side_b_refs_json = excluded.side_b_refs_json,
			superseded_by = '',
			created_at = excluded.created_at,
			resolved_at = NULL
	`, m.ID, m.AccountID, m.RunID, m.Kind, m.Status, m.Confidence, string(subScores),
		string(sideA), string(sideB), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", m.ID, err)
	}
	return nil
}

func upsertDiscrepancy(ctx context.Context, tx *sql.Tx, d *ledger.Discrepancy) error {
	detail, err := json.Marshal(d.Detail)
	if err != nil {
		return fmt.Errorf("encode detail of discrepancy %s: %w", d.ID, err)
	}
	status := d.Status
	if status == "" {
		status = ledger.DiscrepancyOpen
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO discrepancies
		(id, match_id, account_id, type, severity, status, suggested_action, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status,
			suggested_action = excluded.suggested_action,
			detail_json = excluded.detail_json,
			created_at = excluded.created_at
	`, d.ID, d.MatchID, d.AccountID, d.Type, d.Severity, status, d.SuggestedAction, string(detail), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert discrepancy %s: %w", d.ID, err)
	}
	return nil
}

// FailRun marks a run as failed
func (s *Storage) FailRun(ctx context.Context, runID string, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_runs
		SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, RunFailed, time.Now().UTC(), reason, runID)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

const runColumns = `id, account_id, started_at, completed_at, as_of, status, error_message, stats_json`

func scanRun(row rowScanner) (Run, error) {
	var (
		r           Run
		completedAt sql.NullTime
		stats       string
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.StartedAt, &completedAt, &r.AsOf, &r.Status, &r.ErrorMessage, &stats); err != nil {
		return r, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(stats), &r.Stats); err != nil {
		return r, fmt.Errorf("decode stats of run %s: %w", r.ID, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs of an account
func (s *Storage) ListRuns(ctx context.Context, accountID string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE account_id = ?
		ORDER BY started_at DESC, id
		LIMIT ?
	`, accountID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM reconciliation_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// withTx runs fn in a transaction, committing on success
func (s *Storage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
