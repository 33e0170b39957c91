package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"taxEvents/internal/transport/httpServer/handlers/dto"

	"github.com/google/uuid"
)

// ValidationHandler обслуживает ручную перепроверку ссылок.
type ValidationHandler struct {
	log       *slog.Logger
	repo      EventRepository
	validator Validator
}

// NewValidationHandler создаёт новый экземпляр ValidationHandler.
func NewValidationHandler(log *slog.Logger, repo EventRepository, validator Validator) *ValidationHandler {
	return &ValidationHandler{
		log:       log,
		repo:      repo,
		validator: validator,
	}
}

// Recheck обрабатывает POST /api/v1/admin/events/recheck.
// С id перепроверяет одно событие, иначе пачку из batch_size событий.
func (h *ValidationHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.ValidationHandler.Recheck()"
	log := h.log.With(slog.String("op", op))

	req, err := decodeRecheck(r)
	if err != nil {
		respondError(log, err, w, http.StatusBadRequest)
		return
	}

	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			respondError(log, fmt.Errorf("%w: %q", errBadEventID, req.ID), w, http.StatusBadRequest)
			return
		}
		updated, err := h.validator.RunOne(r.Context(), id)
		if err != nil {
			respondError(log, err, w, statusFor(err))
			return
		}
		respond(log, w, http.StatusOK, dto.MapDomainToEventResponse(updated))
		return
	}

	result := h.validator.Run(r.Context(), req.BatchSize)
	respond(log, w, http.StatusOK, result)
}

// Status обрабатывает GET /api/v1/admin/events/recheck: общая статистика или одно событие по ?id=.
func (h *ValidationHandler) Status(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.ValidationHandler.Status()"
	log := h.log.With(slog.String("op", op))

	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(log, fmt.Errorf("%w: %q", errBadEventID, raw), w, http.StatusBadRequest)
			return
		}
		e, err := h.repo.FindEventByID(r.Context(), id)
		if err != nil {
			respondError(log, err, w, statusFor(err))
			return
		}
		respond(log, w, http.StatusOK, dto.MapDomainToEventResponse(e))
		return
	}

	stats, err := h.validator.Stats(r.Context())
	if err != nil {
		respondError(log, fmt.Errorf("failed to read stats: %w", err), w, http.StatusInternalServerError)
		return
	}
	respond(log, w, http.StatusOK, stats)
}

// decodeRecheck читает необязательное JSON тело. Параметры запроса его переопределяют.
func decodeRecheck(r *http.Request) (dto.RecheckRequest, error) {
	var req dto.RecheckRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("%w: %w", errBadJSON, err)
		}
	}

	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		req.ID = id
	}
	if raw := q.Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, fmt.Errorf("batch_size: %w", err)
		}
		req.BatchSize = n
	}
	if req.BatchSize < 0 {
		return req, errors.New("batch_size must not be negative")
	}
	return req, nil
}
