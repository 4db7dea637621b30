package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

var knownTypes = map[string]bool{
	string(ledger.AmountMismatch): true, string(ledger.TimingMismatch): true,
	string(ledger.FeeDifference): true, string(ledger.MissingCounterpart): true,
	string(ledger.DuplicateCandidate): true, string(ledger.CurrencyMismatch): true,
}

// DiscrepanciesHandler handles discrepancy-related HTTP requests.
type DiscrepanciesHandler struct {
	*Base
}

// NewDiscrepanciesHandler creates a new discrepancies handler.
func NewDiscrepanciesHandler(svc *service.ReconcileService) *DiscrepanciesHandler {
	return &DiscrepanciesHandler{
		Base: NewBase(svc),
	}
}

// List handles GET /api/accounts/{accountID}/discrepancies. Open
// discrepancies are listed by default; status=all lists every status.
func (h *DiscrepanciesHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("account ID is required"))
		return
	}

	params := dto.DefaultDiscrepancyListParams()
	query := r.URL.Query()
	if v := query.Get("status"); v != "" {
		params.Status = v
	}
	if params.Status == "all" {
		params.Status = ""
	}
	params.Severity = query.Get("severity")
	params.Type = query.Get("type")
	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)
	if params.Offset < 0 {
		params.Offset = 0
	}

	switch {
	case params.Status != "" && params.Status != string(ledger.DiscrepancyOpen) && params.Status != string(ledger.DiscrepancyResolved):
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unknown status "+params.Status))
		return
	case params.Severity != "" && !knownSeverities[params.Severity]:
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unknown severity "+params.Severity))
		return
	case params.Type != "" && !knownTypes[params.Type]:
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unknown type "+params.Type))
		return
	}

	result, err := h.svc.ListDiscrepancies(r.Context(), storage.DiscrepancyFilters{
		AccountID: accountID,
		Severity:  ledger.Severity(params.Severity),
		Type:      ledger.DiscrepancyType(params.Type),
		Status:    ledger.DiscrepancyStatus(params.Status),
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		h.WriteServiceError(w, err, "discrepancies")
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.DiscrepancyListResponse{
		Discrepancies: result.Discrepancies,
		TotalCount:    result.TotalCount,
		Limit:         result.Limit,
		Offset:        result.Offset,
	})
}

// Resolve handles POST /api/discrepancies/{id}/resolve - records an
// operator decision.
func (h *DiscrepanciesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("discrepancy ID is required"))
		return
	}

	var req dto.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.Action == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("action is required"))
		return
	}

	result, err := h.svc.Resolve(r.Context(), service.ResolveRequest{
		DiscrepancyID:    id,
		Action:           ledger.ResolutionAction(req.Action),
		Notes:            req.Notes,
		AdjustmentAmount: req.AdjustmentAmount,
		ResolvedBy:       req.ResolvedBy,
	})
	if err != nil {
		h.WriteServiceError(w, err, "discrepancy")
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
