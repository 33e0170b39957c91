package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils"
	"taxEvents/internal/utils/logger/sl"
)

var (
	errBadJSON    = errors.New("cannot decode json")
	errBadEventID = errors.New("invalid event id")
)

// statusFor сопоставляет доменные ошибки и HTTP статусы.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, errBadJSON), errors.Is(err, errBadEventID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(log *slog.Logger, err error, w http.ResponseWriter, status int) {
	if status >= http.StatusInternalServerError {
		log.Error("handler error", sl.Err(err))
	} else {
		log.Warn("request rejected", slog.Int("status", status), sl.Err(err))
	}
	if httpErr := utils.Err(w, status, err); httpErr != nil {
		log.Error("error sending http response", sl.Err(httpErr))
	}
}

func respond(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	if err := utils.Json(w, status, v); err != nil {
		log.Error("error encoding response", sl.Err(err))
	}
}
