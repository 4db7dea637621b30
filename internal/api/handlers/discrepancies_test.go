package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/api/handlers"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

func seededDiscrepancies() *storage.MockRepository {
	repo := storage.NewMockRepository()
	closed := discrepancy("d_closed", "m1", ledger.TimingMismatch, ledger.SeverityMedium)
	closed.Status = ledger.DiscrepancyResolved
	seedMatch(repo, "m1", ledger.KindFuzzy, ledger.StatusDiscrepant,
		discrepancy("d_low", "m1", ledger.FeeDifference, ledger.SeverityLow),
		closed,
	)
	seedMatch(repo, "m2", ledger.KindUnmatched, ledger.StatusDiscrepant,
		discrepancy("d_high", "m2", ledger.MissingCounterpart, ledger.SeverityHigh))
	return repo
}

func TestDiscrepanciesHandler_List(t *testing.T) {
	handler := handlers.NewDiscrepanciesHandler(newService(seededDiscrepancies()))

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{name: "open by default, highest severity first", query: "", wantIDs: []string{"d_high", "d_low"}},
		{name: "all statuses", query: "?status=all", wantIDs: []string{"d_high", "d_closed", "d_low"}},
		{name: "resolved only", query: "?status=resolved", wantIDs: []string{"d_closed"}},
		{name: "by type", query: "?type=FEE_DIFFERENCE", wantIDs: []string{"d_low"}},
		{name: "by severity", query: "?severity=HIGH", wantIDs: []string{"d_high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct_1/discrepancies"+tt.query, nil)
			req = req.WithContext(setChiURLParam(req.Context(), "accountID", "acct_1"))
			rec := httptest.NewRecorder()

			handler.List(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var response dto.DiscrepancyListResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))

			ids := make([]string, 0, len(response.Discrepancies))
			for _, d := range response.Discrepancies {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), response.TotalCount)
		})
	}
}

func TestDiscrepanciesHandler_List_InvalidFilter(t *testing.T) {
	handler := handlers.NewDiscrepanciesHandler(newService(storage.NewMockRepository()))

	for _, query := range []string{"?status=pending", "?type=WRONG", "?severity=low-ish"} {
		req := httptest.NewRequest(http.MethodGet, "/api/accounts/acct_1/discrepancies"+query, nil)
		req = req.WithContext(setChiURLParam(req.Context(), "accountID", "acct_1"))
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func resolveRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/discrepancies/"+id+"/resolve", strings.NewReader(body))
	return req.WithContext(setChiURLParam(context.Background(), "id", id))
}

func TestDiscrepanciesHandler_Resolve(t *testing.T) {
	t.Run("resolves and moves the match", func(t *testing.T) {
		repo := seededDiscrepancies()
		handler := handlers.NewDiscrepanciesHandler(newService(repo))
		rec := httptest.NewRecorder()

		handler.Resolve(rec, resolveRequest("d_high", `{"action":"create_ledger_entry","notes":"booked","resolved_by":"ops"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var result service.ResolveResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.Equal(t, ledger.StatusResolved, result.MatchStatus)
		assert.Equal(t, ledger.ActionCreateLedgerEntry, result.Resolution.Action)
		assert.Equal(t, "ops", result.Resolution.ResolvedBy)
		assert.Equal(t, 1, repo.SaveResolutionCalls)
	})

	t.Run("adjust_amount carries the adjustment", func(t *testing.T) {
		handler := handlers.NewDiscrepanciesHandler(newService(seededDiscrepancies()))
		rec := httptest.NewRecorder()

		handler.Resolve(rec, resolveRequest("d_low", `{"action":"adjust_amount","adjustment_amount":-300}`))

		require.Equal(t, http.StatusOK, rec.Code)
		var result service.ResolveResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		require.NotNil(t, result.Resolution.AdjustmentAmount)
		assert.Equal(t, int64(-300), *result.Resolution.AdjustmentAmount)
	})

	tests := []struct {
		name     string
		id       string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "invalid body", id: "d_low", body: `{`, wantCode: http.StatusBadRequest, wantErr: dto.ErrCodeBadRequest},
		{name: "missing action", id: "d_low", body: `{}`, wantCode: http.StatusBadRequest, wantErr: dto.ErrCodeBadRequest},
		{name: "unknown action", id: "d_low", body: `{"action":"delete_it"}`, wantCode: http.StatusBadRequest, wantErr: dto.ErrCodeBadRequest},
		{name: "adjust without amount", id: "d_low", body: `{"action":"adjust_amount"}`, wantCode: http.StatusBadRequest, wantErr: dto.ErrCodeBadRequest},
		{name: "unknown discrepancy", id: "nope", body: `{"action":"flag_for_review"}`, wantCode: http.StatusNotFound, wantErr: dto.ErrCodeNotFound},
		{name: "already resolved", id: "d_closed", body: `{"action":"flag_for_review"}`, wantCode: http.StatusConflict, wantErr: dto.ErrCodeAlreadyResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewDiscrepanciesHandler(newService(seededDiscrepancies()))
			rec := httptest.NewRecorder()

			handler.Resolve(rec, resolveRequest(tt.id, tt.body))

			assert.Equal(t, tt.wantCode, rec.Code)
			var apiErr dto.APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
			assert.Equal(t, tt.wantErr, apiErr.Code)
		})
	}
}

func TestDiscrepanciesHandler_Resolve_SupersededMatch(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.SeedMatch(ledger.Match{
		ID:           "old",
		AccountID:    "acct_1",
		SideARefs:    []string{"ch_1"},
		Kind:         ledger.KindUnmatched,
		Status:       ledger.StatusDiscrepant,
		SupersededBy: "new",
		CreatedAt:    createdAt,
	}, discrepancy("d1", "old", ledger.MissingCounterpart, ledger.SeverityHigh))
	handler := handlers.NewDiscrepanciesHandler(newService(repo))
	rec := httptest.NewRecorder()

	handler.Resolve(rec, resolveRequest("d1", `{"action":"flag_for_review"}`))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var apiErr dto.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, dto.ErrCodeInvalidTransition, apiErr.Code)
}
