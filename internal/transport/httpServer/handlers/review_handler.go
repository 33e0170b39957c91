package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/transport/httpServer/handlers/dto"
	"taxEvents/internal/transport/httpServer/middleware"

	"github.com/google/uuid"
)

// ReviewHandler обслуживает модерацию из админки.
type ReviewHandler struct {
	log      *slog.Logger
	reviewer Reviewer
}

// NewReviewHandler создаёт новый экземпляр ReviewHandler.
func NewReviewHandler(log *slog.Logger, reviewer Reviewer) *ReviewHandler {
	return &ReviewHandler{
		log:      log,
		reviewer: reviewer,
	}
}

// List обрабатывает GET /api/v1/admin/events/review.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.ReviewHandler.List()"
	log := h.log.With(slog.String("op", op))

	overview, err := h.reviewer.Overview(r.Context())
	if err != nil {
		respondError(log, fmt.Errorf("failed to list events: %w", err), w, http.StatusInternalServerError)
		return
	}

	respond(log, w, http.StatusOK, dto.ReviewListResponse{
		Events:  dto.MapDomainToEventResponseList(overview.Events),
		Summary: dto.MapSummary(overview.Summary),
	})
}

// Update обрабатывает PATCH /api/v1/admin/events/review.
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.ReviewHandler.Update()"
	log := h.log.With(slog.String("op", op))

	var req dto.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(log, fmt.Errorf("%w: %w", errBadJSON, err), w, http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.EventID)
	if err != nil {
		respondError(log, fmt.Errorf("%w: %q", errBadEventID, req.EventID), w, http.StatusBadRequest)
		return
	}

	session, _ := middleware.SessionFromContext(r.Context())
	log.Info("review requested",
		slog.String("event_id", id.String()),
		slog.String("status", req.Status),
		slog.String("admin", session.ProfileID),
	)

	updated, err := h.reviewer.Transition(r.Context(), id, domain.ReviewStatus(req.Status), req.Notes, session.ProfileID)
	if err != nil {
		respondError(log, err, w, statusFor(err))
		return
	}

	respond(log, w, http.StatusOK, dto.MapDomainToEventResponse(updated))
}
