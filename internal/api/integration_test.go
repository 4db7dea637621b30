package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/api"
	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// =============================================================================
// API Integration Tests
// =============================================================================
// These tests use real SQLite databases to test the full stack:
// HTTP request → Router → Handlers → Service → Engine → Storage → SQLite

func createTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "api_integration.db"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewReconcileService(service.DefaultConfig(), store, nil, logger)
	server := api.NewServer(api.DefaultConfig(), svc, logger)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func record(id, amount, ts, description string) ledger.RawTransaction {
	return ledger.RawTransaction{ExternalID: id, Amount: amount, Currency: "USD", Timestamp: ts, Description: description}
}

func feeds() dto.ReconcileRequest {
	return dto.ReconcileRequest{
		AsOf: "2025-03-10T00:00:00Z",
		SideA: []ledger.RawTransaction{
			record("ch_1", "75.00", "2025-03-05T09:00:00Z", "Invoice 1001 ACME"),
			record("ch_2", "500.00", "2025-03-01T10:00:00Z", "Invoice 2002 Globex"),
			{
				ExternalID: "ch_3", Amount: "100.00", Currency: "USD", Timestamp: "2025-03-02T10:00:00Z",
				Description: "Invoice 3003 Initech", Payload: map[string]string{"fee_minor": "320"},
			},
		},
		SideB: []ledger.RawTransaction{
			record("dep_1", "75.00", "2025-03-05", "Invoice 1001 ACME"),
			record("dep_3", "96.80", "2025-03-03", "Invoice 3003 Initech"),
		},
	}
}

func TestAPI_Integration_HealthCheck(t *testing.T) {
	ts := createTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[dto.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
}

func TestAPI_Integration_ListMatches_Empty(t *testing.T) {
	ts := createTestServer(t)

	resp, err := http.Get(ts.URL + "/api/accounts/acct_1/matches")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[dto.MatchListResponse](t, resp)
	assert.Equal(t, 0, result.TotalCount)
	assert.NotNil(t, result.Matches)
	assert.Empty(t, result.Matches)
}

func TestAPI_Integration_ReconcileAndResolve(t *testing.T) {
	ts := createTestServer(t)
	base := ts.URL + "/api/accounts/acct_1"

	// Reconcile
	resp := postJSON(t, base+"/reconcile", feeds())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[service.RunSummary](t, resp)
	assert.Equal(t, 3, summary.Stats.SideA)
	assert.Equal(t, 2, summary.Stats.SideB)
	assert.Equal(t, 1, summary.Stats.Exact)
	assert.Equal(t, 1, summary.Stats.Unmatched)
	assert.Len(t, summary.Matches, 3)

	// Matches survive the round trip through SQLite
	resp, err := http.Get(base + "/matches")
	require.NoError(t, err)
	matches := decode[dto.MatchListResponse](t, resp)
	assert.Equal(t, 3, matches.TotalCount)
	for _, m := range matches.Matches {
		assert.Equal(t, summary.RunID, m.RunID)
	}

	resp, err = http.Get(base + "/matches?has_discrepancy=false")
	require.NoError(t, err)
	clean := decode[dto.MatchListResponse](t, resp)
	require.Equal(t, 1, clean.TotalCount)
	assert.Equal(t, ledger.KindExact, clean.Matches[0].Kind)
	assert.Equal(t, ledger.StatusMatched, clean.Matches[0].Status)

	// Open discrepancies, most severe first
	resp, err = http.Get(base + "/discrepancies")
	require.NoError(t, err)
	open := decode[dto.DiscrepancyListResponse](t, resp)
	require.Equal(t, 2, open.TotalCount)
	assert.Equal(t, ledger.MissingCounterpart, open.Discrepancies[0].Type)
	assert.Equal(t, ledger.SeverityHigh, open.Discrepancies[0].Severity)
	assert.Equal(t, ledger.FeeDifference, open.Discrepancies[1].Type)

	// Explain the fee difference without an AI client
	fee := open.Discrepancies[1]
	resp = postJSON(t, ts.URL+"/api/matches/"+fee.MatchID+"/explain", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	explanation := decode[service.Explanation](t, resp)
	assert.Equal(t, service.SourceFallback, explanation.Source)
	assert.Contains(t, explanation.Text, "FEE_DIFFERENCE")

	// Resolve it
	resp = postJSON(t, ts.URL+"/api/discrepancies/"+fee.ID+"/resolve", dto.ResolveRequest{
		Action:     string(ledger.ActionMarkAsExpected),
		Notes:      "processor fee",
		ResolvedBy: "ops@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decode[service.ResolveResult](t, resp)
	assert.Equal(t, ledger.StatusResolved, resolved.MatchStatus)

	// A second resolve of the same discrepancy conflicts
	resp = postJSON(t, ts.URL+"/api/discrepancies/"+fee.ID+"/resolve", dto.ResolveRequest{Action: string(ledger.ActionFlagForReview)})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	apiErr := decode[dto.APIError](t, resp)
	assert.Equal(t, dto.ErrCodeAlreadyResolved, apiErr.Code)

	// The match detail shows the resolution
	resp, err = http.Get(ts.URL + "/api/matches/" + fee.MatchID)
	require.NoError(t, err)
	detail := decode[service.MatchDetail](t, resp)
	assert.Equal(t, ledger.StatusResolved, detail.Match.Status)
	require.Len(t, detail.Resolutions, 1)
	assert.Equal(t, "processor fee", detail.Resolutions[0].Notes)

	// Rerunning the same feeds leaves the resolved match alone
	resp = postJSON(t, base+"/reconcile", feeds())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rerun := decode[service.RunSummary](t, resp)
	assert.Equal(t, 4, rerun.Stats.Excluded, "records of the matched and resolved pairs")
	assert.Empty(t, rerun.Superseded)

	resp, err = http.Get(base + "/discrepancies")
	require.NoError(t, err)
	stillOpen := decode[dto.DiscrepancyListResponse](t, resp)
	assert.Equal(t, 1, stillOpen.TotalCount)

	resp, err = http.Get(base + "/runs")
	require.NoError(t, err)
	runs := decode[dto.RunListResponse](t, resp)
	assert.Equal(t, 2, runs.Count)
	for _, run := range runs.Runs {
		assert.Equal(t, storage.RunCompleted, run.Status)
	}
}

func TestAPI_Integration_AccountsAreIsolated(t *testing.T) {
	ts := createTestServer(t)

	resp := postJSON(t, ts.URL+"/api/accounts/acct_1/reconcile", feeds())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/accounts/acct_2/matches")
	require.NoError(t, err)
	result := decode[dto.MatchListResponse](t, resp)
	assert.Equal(t, 0, result.TotalCount)
}

func TestAPI_Integration_NotFound(t *testing.T) {
	ts := createTestServer(t)

	for _, path := range []string{"/api/matches/missing"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		resp.Body.Close()
	}

	resp := postJSON(t, ts.URL+"/api/discrepancies/missing/resolve", dto.ResolveRequest{Action: "flag_for_review"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Integration_CORS(t *testing.T) {
	ts := createTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, fmt.Sprintf("%s/api/accounts/acct_1/matches", ts.URL), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
