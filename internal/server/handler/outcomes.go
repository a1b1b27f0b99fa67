package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/TemamAb/orion-executor/internal/domain"
)

// OutcomeHandler serves read-only access to the outcome ledger for
// operators and dashboards.
type OutcomeHandler struct {
	ledger domain.OutcomeLedger
	logger *slog.Logger
}

// NewOutcomeHandler creates an OutcomeHandler.
func NewOutcomeHandler(ledger domain.OutcomeLedger, logger *slog.Logger) *OutcomeHandler {
	return &OutcomeHandler{ledger: ledger, logger: logHandler(logger, "outcomes")}
}

// GetOutcome returns the terminal outcome for one opportunity.
// GET /api/outcomes/{id}
func (h *OutcomeHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing opportunity id")
		return
	}

	out, err := h.ledger.Lookup(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		h.logger.Error("outcome lookup failed",
			slog.String("opportunity_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "outcome lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// ListRecent returns the most recently recorded terminal outcomes.
// GET /api/outcomes/recent?limit=N
func (h *OutcomeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	outs, err := h.ledger.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("outcome list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "outcome list failed")
		return
	}
	if outs == nil {
		outs = []domain.Outcome{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outs,
		"count":    len(outs),
	})
}
