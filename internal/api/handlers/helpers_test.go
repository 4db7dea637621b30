package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

var createdAt = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(repo storage.Repository) *service.ReconcileService {
	return service.NewReconcileService(service.DefaultConfig(), repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Helper to set chi URL params in context
func setChiURLParam(ctx context.Context, kv ...string) context.Context {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

func seedMatch(repo *storage.MockRepository, id string, kind ledger.MatchKind, status ledger.Status, ds ...ledger.Discrepancy) {
	repo.SeedMatch(ledger.Match{
		ID:         id,
		AccountID:  "acct_1",
		SideARefs:  []string{"ch_" + id},
		SideBRefs:  []string{"dep_" + id},
		Confidence: 0.9,
		Kind:       kind,
		Status:     status,
		CreatedAt:  createdAt,
	}, ds...)
}

func discrepancy(id, matchID string, typ ledger.DiscrepancyType, sev ledger.Severity) ledger.Discrepancy {
	return ledger.Discrepancy{
		ID:        id,
		MatchID:   matchID,
		AccountID: "acct_1",
		Type:      typ,
		Severity:  sev,
		Status:    ledger.DiscrepancyOpen,
		Detail:    map[string]any{"amount_delta": int64(300), "currency": "USD"},
		CreatedAt: createdAt,
	}
}
