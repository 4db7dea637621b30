package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

// RunsHandler handles reconciliation run-related HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(svc *service.ReconcileService) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(svc),
	}
}

// List handles GET /api/accounts/{accountID}/runs - returns recent runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("account ID is required"))
		return
	}

	limit := ParseIntParam(r, "limit", dto.DefaultRunListParams().Limit)

	runs, err := h.svc.ListRuns(r.Context(), accountID, limit)
	if err != nil {
		h.WriteServiceError(w, err, "runs")
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}

	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toRunResponse converts a storage Run to an API response.
func toRunResponse(run storage.Run) dto.RunResponse {
	resp := dto.RunResponse{
		ID:           run.ID,
		AccountID:    run.AccountID,
		StartedAt:    run.StartedAt.UTC().Format(time.RFC3339),
		AsOf:         run.AsOf.UTC().Format(time.RFC3339),
		Status:       run.Status,
		ErrorMessage: run.ErrorMessage,
		Stats:        run.Stats,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
