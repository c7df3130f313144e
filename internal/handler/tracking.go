package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
)

// 1x1 transparent GIF
var trackingPixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// TrackingHandler serves the open pixel and click redirect. Recording the
// hit is handed to the queue; the response never waits on it.
type TrackingHandler struct {
	Queue queue.Queue
	Now   func() time.Time
}

func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.record(r.Context(), chi.URLParam(r, "recipientID"), model.MilestoneOpened)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(trackingPixel)
}

func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		RespondError(w, http.StatusBadRequest, "Missing URL")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		RespondError(w, http.StatusBadRequest, "Invalid URL")
		return
	}

	h.record(r.Context(), chi.URLParam(r, "recipientID"), model.MilestoneClicked)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *TrackingHandler) record(ctx context.Context, rawID string, m model.RecipientMilestone) {
	log := logger.FromContext(ctx)
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		log.Debug().Str("recipient_id", rawID).Msg("ignoring tracking hit for malformed id")
		return
	}
	metrics.TrackingHitsTotal.WithLabelValues(string(m)).Inc()

	hit := model.TrackingHit{RecipientID: id, Milestone: m, At: h.now()}
	go func() {
		if err := h.Queue.Publish(queue.TrackingTopic, hit); err != nil {
			log.Warn().Err(err).Int("recipient_id", id).Msg("failed to publish tracking hit")
		}
	}()
}

func (h *TrackingHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
