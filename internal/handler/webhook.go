package handler

import (
	"encoding/json"
	"net/http"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type WebhookHandler struct {
	Ingestor *service.EventIngestor
}

// Verify answers the ESP's endpoint verification probe.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SendGrid handles POST /webhooks/sendgrid. The body must be a JSON array;
// each element is decoded and applied on its own and the response
// summarizes the batch.
func (h *WebhookHandler) SendGrid(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var events []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		log.Warn().Err(err).Msg("sendgrid webhook: invalid payload")
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary := h.Ingestor.IngestRaw(r.Context(), events)
	log.Info().
		Int("received", summary.Received).
		Int("applied", summary.Applied).
		Int("duplicate", summary.Duplicate).
		Int("failed", summary.Failed).
		Msg("sendgrid webhook processed")
	RespondJSON(w, http.StatusOK, summary)
}
