package controller

import (
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

func statusFor(err error) int {
	var (
		guard      *appErrors.ErrInvalidTransition
		validation *appErrors.ErrValidation
	)
	switch {
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &guard):
		return http.StatusConflict
	case errors.As(err, &validation), errors.Is(err, appErrors.ErrInvalidToken):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondErr maps err to a status code. Internal errors are logged and
// their text is not exposed.
func respondErr(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg(msg)
		handler.RespondError(w, status, msg)
		return
	}
	handler.RespondError(w, status, err.Error())
}
