package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/TemamAb/orion-executor/internal/domain"
	"github.com/TemamAb/orion-executor/internal/executor"
)

// maxEnvelopeBytes bounds the push request body.
const maxEnvelopeBytes = 1 << 20 // 1 MB

// Executor drives one decoded opportunity to a terminal outcome.
type Executor interface {
	Execute(ctx context.Context, opp domain.Opportunity) (executor.Result, error)
}

// pushEnvelope is the wire shape of an incoming push delivery: the
// opportunity payload rides base64-encoded inside message.data.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"` // base64, decoded by encoding/json
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushHandler is the ingress for opportunity notifications. The response
// status is the acknowledgement protocol: 2xx acknowledges the delivery,
// anything else causes the broker to redeliver.
type PushHandler struct {
	exec   Executor
	logger *slog.Logger
}

// NewPushHandler creates a PushHandler.
func NewPushHandler(exec Executor, logger *slog.Logger) *PushHandler {
	return &PushHandler{exec: exec, logger: logHandler(logger, "push")}
}

// HandlePush receives one push delivery, decodes the opportunity, and
// runs it through the executor.
//
//	204  terminal outcome exists (recorded now or previously) — ack
//	400  malformed envelope or payload — ack, redelivery cannot help
//	500  infrastructure failure, nothing recorded — nack for redelivery
//
// POST /
func (h *PushHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		// A transport-level read failure says nothing about the envelope;
		// let the broker redeliver.
		h.logger.Warn("push body read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "unreadable body")
		return
	}

	opp, err := decodeEnvelope(body, time.Now().UTC())
	if err != nil {
		h.logger.Warn("malformed push delivery", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "malformed delivery")
		return
	}

	res, err := h.exec.Execute(r.Context(), opp)
	if err != nil {
		h.logger.Warn("execution deferred to redelivery",
			slog.String("opportunity_id", opp.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "execution incomplete")
		return
	}

	if res.AlreadyProcessed {
		h.logger.Info("duplicate delivery acknowledged",
			slog.String("opportunity_id", opp.ID),
			slog.String("status", string(res.Outcome.Status)),
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeEnvelope unwraps the push envelope and decodes the opportunity.
// All failures map to domain.ErrMalformedEnvelope or ErrMalformedPayload.
func decodeEnvelope(body []byte, now time.Time) (domain.Opportunity, error) {
	var env pushEnvelope
	// A non-base64 data field fails here too.
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Opportunity{}, domain.ErrMalformedEnvelope
	}
	if len(env.Message.Data) == 0 {
		return domain.Opportunity{}, domain.ErrMalformedEnvelope
	}
	return domain.DecodeOpportunity(env.Message.Data, now)
}
