package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type UnsubscribeHandler struct {
	Service *service.UnsubscribeService
}

// Status backs the confirmation page: who is unsubscribing and whether they already did.
func (h *UnsubscribeHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

func (h *UnsubscribeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	email, err := h.Service.Confirm(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"success": true, "email": email})
}

func (h *UnsubscribeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case service.IsInvalidToken(err):
		RespondError(w, http.StatusBadRequest, "Invalid token")
	case appErrors.IsNotFound(err):
		RespondError(w, http.StatusNotFound, "Contact not found")
	default:
		l := logger.FromContext(r.Context())
		l.Error().Err(err).Msg("unsubscribe failed")
		RespondError(w, http.StatusInternalServerError, "Failed to process unsubscribe")
	}
}
