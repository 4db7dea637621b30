package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-reconciler/internal/api/dto"
	"github.com/eshaffer321/ledger-reconciler/internal/application/service"
	"github.com/eshaffer321/ledger-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/storage"
)

var (
	knownStatuses = map[string]bool{
		string(ledger.StatusUnmatched): true, string(ledger.StatusCandidate): true,
		string(ledger.StatusScored): true, string(ledger.StatusMatched): true,
		string(ledger.StatusDiscrepant): true, string(ledger.StatusResolved): true,
		string(ledger.StatusIgnored): true,
	}
	knownKinds = map[string]bool{
		string(ledger.KindExact): true, string(ledger.KindFuzzy): true,
		string(ledger.KindPartialSplit): true, string(ledger.KindUnmatched): true,
	}
	knownSeverities = map[string]bool{
		string(ledger.SeverityLow): true, string(ledger.SeverityMedium): true, string(ledger.SeverityHigh): true,
	}
)

// MatchesHandler handles match-related HTTP requests.
type MatchesHandler struct {
	*Base
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(svc *service.ReconcileService) *MatchesHandler {
	return &MatchesHandler{
		Base: NewBase(svc),
	}
}

// List handles GET /api/accounts/{accountID}/matches - returns paginated matches.
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("account ID is required"))
		return
	}

	params := h.parseListParams(r)
	if msg := validateMatchParams(params); msg != "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(msg))
		return
	}

	result, err := h.svc.ListMatches(r.Context(), storage.MatchFilters{
		AccountID:         accountID,
		Status:            ledger.Status(params.Status),
		Kind:              ledger.MatchKind(params.Kind),
		Severity:          ledger.Severity(params.Severity),
		HasDiscrepancy:    params.HasDiscrepancy,
		IncludeSuperseded: params.IncludeSuperseded,
		Limit:             params.Limit,
		Offset:            params.Offset,
	})
	if err != nil {
		h.WriteServiceError(w, err, "matches")
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MatchListResponse{
		Matches:    result.Matches,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /api/matches/{id} - returns a match with its discrepancies
// and resolutions.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("match ID is required"))
		return
	}

	detail, err := h.svc.GetMatch(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, err, "match")
		return
	}

	h.WriteJSON(w, http.StatusOK, detail)
}

// Explain handles POST /api/matches/{id}/explain - returns prose about the match.
func (h *MatchesHandler) Explain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("match ID is required"))
		return
	}

	explanation, err := h.svc.Explain(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, err, "match")
		return
	}

	h.WriteJSON(w, http.StatusOK, explanation)
}

// parseListParams extracts list parameters from the request.
func (h *MatchesHandler) parseListParams(r *http.Request) dto.MatchListParams {
	params := dto.DefaultMatchListParams()

	query := r.URL.Query()
	params.Status = query.Get("status")
	params.Kind = query.Get("kind")
	params.Severity = query.Get("severity")
	params.HasDiscrepancy = ParseOptionalBoolParam(r, "has_discrepancy")
	params.IncludeSuperseded = ParseBoolParam(r, "include_superseded", false)

	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)
	if params.Offset < 0 {
		params.Offset = 0
	}

	return params
}

func validateMatchParams(p dto.MatchListParams) string {
	switch {
	case p.Status != "" && !knownStatuses[p.Status]:
		return "unknown status " + p.Status
	case p.Kind != "" && !knownKinds[p.Kind]:
		return "unknown kind " + p.Kind
	case p.Severity != "" && !knownSeverities[p.Severity]:
		return "unknown severity " + p.Severity
	}
	return ""
}
