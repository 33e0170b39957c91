package handlers

import (
	"context"
	"time"

	"taxEvents/internal/ingestion"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/review"

	"github.com/google/uuid"
)

// EventRepository - чтение событий для списка и админки.
type EventRepository interface {
	ListPublishableEvents(ctx context.Context, now time.Time) ([]domain.Event, error)
	FindViewerProfile(ctx context.Context, id string) (domain.ViewerProfile, error)
	FindEventByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	DeleteAllEvents(ctx context.Context) (int64, error)
}

// Ingestor определяет интерфейс приёма записей.
type Ingestor interface {
	Ingest(ctx context.Context, records []dto.RawEvent, opts ingestion.Options) (domain.IngestResult, []normalizer.Rejection)
}

// GeneratedIngestor запускает одну генерацию через LLM и сливает результат.
type GeneratedIngestor interface {
	IngestGenerated(ctx context.Context) (domain.IngestResult, []normalizer.Rejection, error)
}

// Reviewer определяет интерфейс модерации.
type Reviewer interface {
	Transition(ctx context.Context, id uuid.UUID, to domain.ReviewStatus, notes, reviewer string) (domain.Event, error)
	Overview(ctx context.Context) (review.Overview, error)
}

// Validator определяет интерфейс перепроверки ссылок.
type Validator interface {
	Run(ctx context.Context, n int) domain.ValidationResult
	RunOne(ctx context.Context, id uuid.UUID) (domain.Event, error)
	Stats(ctx context.Context) (domain.ValidationStats, error)
}

// Verifier проверяет токен защиты от ботов в публичном предложении.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}
