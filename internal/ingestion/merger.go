package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taxEvents/internal/metrics"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/dto"
	"taxEvents/internal/normalizer"
	"taxEvents/internal/utils/logger/sl"

	"github.com/google/uuid"
)

const trustedScore = 100

// Repository определяет операции хранилища, нужные для слияния.
type Repository interface {
	IsTombstoned(ctx context.Context, url string) (bool, error)
	FindEventByDedupeKey(ctx context.Context, key string) (domain.Event, error)
	CreateEvent(ctx context.Context, event domain.Event) (domain.Event, error)
	UpdateEventDetails(ctx context.Context, event domain.Event) (domain.Event, error)
	UpdateLinkHealth(ctx context.Context, id uuid.UUID, health domain.LinkHealth, checkedAt time.Time) (domain.Event, error)
	UpdateReview(ctx context.Context, id uuid.UUID, change domain.ReviewChange) (domain.Event, error)
}

// Notifier получает каждое событие, вставленное в статусе pending_review.
type Notifier interface {
	NotifyPending(ctx context.Context, event domain.Event)
}

// Options описывает, кто прислал пачку.
type Options struct {
	Source domain.Source
	// Actor is the admin profile id for admin_created records and the viewer id for suggestions.
	Actor string
	// ReviewStatus overrides the initial status of admin_created records. Empty means approved.
	ReviewStatus domain.ReviewStatus
}

func (o Options) initialStatus() domain.ReviewStatus {
	if o.Source != domain.SourceAdminCreated {
		return domain.ReviewStatusPending
	}
	if o.ReviewStatus == "" {
		return domain.ReviewStatusApproved
	}
	return o.ReviewStatus
}

// Merger нормализует записи и сливает их с уже сохранёнными по dedupe key.
type Merger struct {
	log        *slog.Logger
	repo       Repository
	normalizer *normalizer.Normalizer
	notifier   Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New создаёт новый экземпляр Merger. notifier и m могут быть nil.
func New(log *slog.Logger, repo Repository, n *normalizer.Normalizer, notifier Notifier, m *metrics.Metrics) *Merger {
	return &Merger{
		log:        log,
		repo:       repo,
		normalizer: n,
		notifier:   notifier,
		metrics:    m,
		now:        time.Now,
	}
}

// Ingest нормализует сырые записи и сливает валидные.
// Отклонённые записи считаются и возвращаются с причинами.
func (m *Merger) Ingest(ctx context.Context, records []dto.RawEvent, opts Options) (domain.IngestResult, []normalizer.Rejection) {
	drafts, rejections := normalizer.Split(m.normalizer.Normalize(records, opts.Source))
	for range rejections {
		m.metrics.IngestRecord(string(opts.Source), metrics.OutcomeRejected)
	}

	result := m.Merge(ctx, drafts, opts)
	result.Rejected = len(rejections)
	return result, rejections
}

// Merge вставляет или обновляет черновики по dedupe key.
// Ошибка на одной записи учитывается в Errors и не прерывает пачку.
func (m *Merger) Merge(ctx context.Context, drafts []domain.Event, opts Options) domain.IngestResult {
	op := "Merger.Merge()"
	log := m.log.With(slog.String("op", op), slog.String("source", string(opts.Source)))

	var result domain.IngestResult
	for _, draft := range drafts {
		result.Processed++

		outcome, err := m.mergeOne(ctx, draft, opts)
		if err != nil {
			result.Errors++
			m.metrics.IngestRecord(string(opts.Source), metrics.OutcomeError)
			log.Error("failed to merge event",
				slog.String("title", draft.Title),
				slog.String("url", draft.CandidateURL),
				sl.Err(err),
			)
			continue
		}

		switch outcome {
		case metrics.OutcomeInserted:
			result.Inserted++
		case metrics.OutcomeUpdated:
			result.Updated++
		case metrics.OutcomeSuppressed:
			result.Suppressed++
			log.Info("tombstoned url suppressed", slog.String("url", draft.CandidateURL))
		}
		m.metrics.IngestRecord(string(opts.Source), outcome)
	}

	log.Info("batch merged",
		slog.Int("processed", result.Processed),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("suppressed", result.Suppressed),
		slog.Int("errors", result.Errors),
	)
	return result
}

func (m *Merger) mergeOne(ctx context.Context, draft domain.Event, opts Options) (string, error) {
	tombstoned, err := m.repo.IsTombstoned(ctx, draft.CandidateURL)
	if err != nil {
		return "", err
	}
	if tombstoned {
		return metrics.OutcomeSuppressed, nil
	}

	existing, err := m.repo.FindEventByDedupeKey(ctx, draft.DedupeKey)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		created, err := m.insert(ctx, draft, opts)
		if errors.Is(err, domain.ErrDuplicateEvent) {
			// a concurrent run inserted the same logical event first
			existing, err = m.repo.FindEventByDedupeKey(ctx, draft.DedupeKey)
			if err != nil {
				return "", err
			}
			return metrics.OutcomeUpdated, m.update(ctx, existing, draft, opts)
		}
		if err != nil {
			return "", err
		}
		if created.ReviewStatus == domain.ReviewStatusPending && m.notifier != nil {
			m.notifier.NotifyPending(ctx, created)
		}
		return metrics.OutcomeInserted, nil
	case err != nil:
		return "", err
	}

	return metrics.OutcomeUpdated, m.update(ctx, existing, draft, opts)
}

func (m *Merger) insert(ctx context.Context, draft domain.Event, opts Options) (domain.Event, error) {
	now := m.now()

	draft.Source = opts.Source
	draft.ReviewStatus = opts.initialStatus()
	draft.Publishable = false

	switch opts.Source {
	case domain.SourceAdminCreated:
		trust(&draft, now)
		if draft.ReviewStatus != domain.ReviewStatusPending {
			draft.ReviewedAt = &now
			draft.ReviewedBy = actor(opts.Actor)
		}
	case domain.SourceUserSuggestion:
		draft.SuggestedAt = &now
		draft.SuggestedBy = actor(opts.Actor)
	}

	return m.repo.CreateEvent(ctx, draft)
}

func (m *Merger) update(ctx context.Context, existing, draft domain.Event, opts Options) error {
	plan := planReingest(existing.ReviewStatus, opts.Source)
	if plan.Promote && opts.initialStatus() != domain.ReviewStatusApproved {
		plan.Promote = false
	}

	if plan.Details {
		draft.ID = existing.ID
		if _, err := m.repo.UpdateEventDetails(ctx, draft); err != nil {
			return fmt.Errorf("update details: %w", err)
		}
	}

	if plan.Promote {
		now := m.now()
		status := http.StatusOK
		canonical := existing.CandidateURL
		health := domain.LinkHealth{
			Status:        &status,
			CanonicalURL:  &canonical,
			RedirectChain: []string{},
			Score:         trustedScore,
		}
		if _, err := m.repo.UpdateLinkHealth(ctx, existing.ID, health, now); err != nil {
			return fmt.Errorf("trust link: %w", err)
		}
		_, err := m.repo.UpdateReview(ctx, existing.ID, domain.ReviewChange{
			From: domain.ReviewStatusPending,
			Review: domain.Review{
				Status:     domain.ReviewStatusApproved,
				Notes:      existing.AdminNotes,
				ReviewedAt: now,
				ReviewedBy: opts.Actor,
			},
		})
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("promote: %w", err)
		}
	}

	return nil
}

// trust заполняет поля проверки ссылки для события администратора без сетевого запроса.
func trust(e *domain.Event, now time.Time) {
	status := http.StatusOK
	canonical := e.CandidateURL
	e.URLStatus = &status
	e.CanonicalURL = &canonical
	e.RedirectChain = []string{}
	e.LinkHealthScore = trustedScore
	e.LastCheckedAt = &now
}

func actor(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
