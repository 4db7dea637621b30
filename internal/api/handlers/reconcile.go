package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
)

// maxReconcileBody caps the request body of a reconciliation.
const maxReconcileBody = 32 << 20

// ReconcileHandler triggers reconciliation runs.
type ReconcileHandler struct {
	*Base
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(svc *service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{
		Base: NewBase(svc),
	}
}

// Trigger handles POST /api/accounts/{accountID}/reconcile - runs a
// reconciliation synchronously and returns its summary.
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("account ID is required"))
		return
	}

	var req dto.ReconcileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReconcileBody)).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	var asOf time.Time
	if req.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("as_of must be RFC3339"))
			return
		}
		asOf = parsed
	}

	summary, err := h.svc.Trigger(r.Context(), service.TriggerRequest{
		AccountID: accountID,
		SideA:     req.SideA,
		SideB:     req.SideB,
		AsOf:      asOf,
	})
	if err != nil {
		h.WriteServiceError(w, err, "account")
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}
