package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"taxEvents/internal/curation"
	"taxEvents/internal/ingestion"
	"taxEvents/internal/models/domain"
	modelsDto "taxEvents/internal/models/dto"
	"taxEvents/internal/orchestrator"
	"taxEvents/internal/transport/httpServer/handlers/dto"
	"taxEvents/internal/transport/httpServer/middleware"
	"taxEvents/internal/turnstile"
)

const modeAll = "all"

// EventHandler обслуживает приём событий и публичный список.
type EventHandler struct {
	log       *slog.Logger
	repo      EventRepository
	ingestor  Ingestor
	generated GeneratedIngestor
	verifier  Verifier
	now       func() time.Time
}

// NewEventHandler создаёт новый экземпляр EventHandler.
func NewEventHandler(log *slog.Logger, repo EventRepository, ingestor Ingestor, generated GeneratedIngestor, verifier Verifier) *EventHandler {
	return &EventHandler{
		log:       log,
		repo:      repo,
		ingestor:  ingestor,
		generated: generated,
		verifier:  verifier,
		now:       time.Now,
	}
}

// IngestGenerated обрабатывает POST /api/v1/events/ingest.
func (h *EventHandler) IngestGenerated(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.IngestGenerated()"
	log := h.log.With(slog.String("op", op))

	result, rejections, err := h.generated.IngestGenerated(r.Context())
	if errors.Is(err, orchestrator.ErrGeneratorDisabled) {
		respondError(log, err, w, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		respondError(log, fmt.Errorf("AI ingestion failed: %w", err), w, http.StatusInternalServerError)
		return
	}

	respond(log, w, http.StatusOK, dto.NewIngestResponse(result, rejections))
}

// CreateEvent обрабатывает POST /api/v1/admin/events. Записи администратора не проверяются по сети.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.CreateEvent()"
	log := h.log.With(slog.String("op", op))

	var req dto.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(log, fmt.Errorf("%w: %w", errBadJSON, err), w, http.StatusBadRequest)
		return
	}

	status := domain.ReviewStatus(req.ReviewStatus)
	if status != "" && status != domain.ReviewStatusApproved && status != domain.ReviewStatusPending {
		respondError(log, fmt.Errorf("%q: %w", req.ReviewStatus, domain.ErrInvalidStatus), w, http.StatusBadRequest)
		return
	}

	session, _ := middleware.SessionFromContext(r.Context())
	log.Info("admin event submitted", slog.String("title", req.Title), slog.String("admin", session.ProfileID))

	h.ingestOne(log, w, r, req.ToRaw(), ingestion.Options{
		Source:       domain.SourceAdminCreated,
		Actor:        session.ProfileID,
		ReviewStatus: status,
	})
}

// Suggest обрабатывает POST /api/v1/events/suggestions. Предложения всегда попадают в pending_review.
func (h *EventHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.Suggest()"
	log := h.log.With(slog.String("op", op))

	var req dto.SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(log, fmt.Errorf("%w: %w", errBadJSON, err), w, http.StatusBadRequest)
		return
	}

	ok, err := h.verifier.Verify(r.Context(), req.TurnstileToken, remoteIP(r))
	switch {
	case errors.Is(err, turnstile.ErrMissingToken):
		respondError(log, err, w, http.StatusBadRequest)
		return
	case err != nil:
		respondError(log, fmt.Errorf("bot protection check failed: %w", err), w, http.StatusBadGateway)
		return
	case !ok:
		respondError(log, errors.New("bot protection check rejected"), w, http.StatusForbidden)
		return
	}

	session, _ := middleware.SessionFromContext(r.Context())
	h.ingestOne(log, w, r, req.ToRaw(), ingestion.Options{
		Source: domain.SourceUserSuggestion,
		Actor:  session.ProfileID,
	})
}

func (h *EventHandler) ingestOne(log *slog.Logger, w http.ResponseWriter, r *http.Request, raw modelsDto.RawEvent, opts ingestion.Options) {
	result, rejections := h.ingestor.Ingest(r.Context(), []modelsDto.RawEvent{raw}, opts)
	resp := dto.NewIngestResponse(result, rejections)

	switch {
	case result.Rejected > 0:
		respond(log, w, http.StatusBadRequest, resp)
	case result.Errors > 0:
		respond(log, w, http.StatusInternalServerError, resp)
	case result.Inserted > 0:
		respond(log, w, http.StatusCreated, resp)
	default:
		respond(log, w, http.StatusOK, resp)
	}
}

// Curated обрабатывает GET /api/v1/events/curated. Без профиля зрителя или с mode=all
// возвращаются все публикуемые предстоящие события.
func (h *EventHandler) Curated(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.Curated()"
	log := h.log.With(slog.String("op", op))
	ctx := r.Context()

	events, err := h.repo.ListPublishableEvents(ctx, h.now())
	if err != nil {
		respondError(log, fmt.Errorf("failed to list events: %w", err), w, http.StatusInternalServerError)
		return
	}

	session, ok := middleware.SessionFromContext(ctx)
	if ok && r.URL.Query().Get("mode") != modeAll {
		profile, err := h.repo.FindViewerProfile(ctx, session.ProfileID)
		switch {
		case errors.Is(err, domain.ErrProfileNotFound):
			log.Debug("viewer has no profile", slog.String("profile_id", session.ProfileID))
		case err != nil:
			respondError(log, fmt.Errorf("failed to load viewer profile: %w", err), w, http.StatusInternalServerError)
			return
		default:
			events = curation.Filter(profile, events)
		}
	}

	respond(log, w, http.StatusOK, dto.MapDomainToPublicList(events))
}

// DeleteAll обрабатывает DELETE /api/v1/admin/events.
func (h *EventHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.DeleteAll()"
	log := h.log.With(slog.String("op", op))

	deleted, err := h.repo.DeleteAllEvents(r.Context())
	if err != nil {
		respondError(log, fmt.Errorf("failed to delete events: %w", err), w, http.StatusInternalServerError)
		return
	}

	session, _ := middleware.SessionFromContext(r.Context())
	log.Warn("all events deleted", slog.Int64("deleted", deleted), slog.String("admin", session.ProfileID))

	respond(log, w, http.StatusOK, dto.DeleteResponse{Deleted: deleted})
}

// remoteIP предпочитает CF-Connecting-IP, если запрос пришёл через Cloudflare.
func remoteIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
