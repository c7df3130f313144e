package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// CronHandler is the external trigger for scheduled campaigns.
type CronHandler struct {
	Scheduler *service.Scheduler
	Secret    string
	Now       func() time.Time
}

func (h *CronHandler) SendScheduled(w http.ResponseWriter, r *http.Request) {
	if h.Secret != "" {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+h.Secret)) != 1 {
			RespondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	results, err := h.Scheduler.ProcessDue(r.Context(), now)
	if err != nil {
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Msg("cron: failed to process scheduled campaigns")
		RespondError(w, http.StatusInternalServerError, "Failed to process scheduled campaigns")
		return
	}

	resp := map[string]any{"processed": len(results), "results": results}
	if len(results) == 0 {
		resp["message"] = "No campaigns due"
	}
	RespondJSON(w, http.StatusOK, resp)
}
