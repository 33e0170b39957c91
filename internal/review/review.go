package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taxEvents/internal/metrics"
	"taxEvents/internal/models/domain"

	"github.com/google/uuid"
)

// Repository определяет операции хранилища, нужные модерации.
type Repository interface {
	FindEventByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	UpdateReview(ctx context.Context, id uuid.UUID, change domain.ReviewChange) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	CountByReviewStatus(ctx context.Context) (map[domain.ReviewStatus]int, error)
}

// allowed содержит переходы администратора. В pending_review ничего не возвращается.
// Повторное применение approved и rejected обновляет отметку и заметки.
var allowed = map[domain.ReviewStatus]map[domain.ReviewStatus]bool{
	domain.ReviewStatusPending: {
		domain.ReviewStatusApproved: true,
		domain.ReviewStatusRejected: true,
	},
	domain.ReviewStatusApproved: {
		domain.ReviewStatusApproved: true,
		domain.ReviewStatusRejected: true,
	},
	domain.ReviewStatusRejected: {
		domain.ReviewStatusApproved: true,
		domain.ReviewStatusRejected: true,
	},
}

// CanTransition сообщает, может ли администратор перевести событие из from в to.
func CanTransition(from, to domain.ReviewStatus) bool {
	return allowed[from][to]
}

// Service применяет решения модерации.
type Service struct {
	log     *slog.Logger
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// New создаёт новый экземпляр Service.
func New(log *slog.Logger, repo Repository, m *metrics.Metrics) *Service {
	return &Service{
		log:     log,
		repo:    repo,
		metrics: m,
		now:     time.Now,
	}
}

// Transition применяет решение администратора. Отклонение добавляет URL в tombstone,
// одобрение отклонённого события снимает его. publishable пересчитывает хранилище.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to domain.ReviewStatus, notes, reviewer string) (domain.Event, error) {
	return s.transition(ctx, "review.Transition()", id, to, notes, reviewer, false)
}

// Decide применяет первое решение по событию в pending_review. Для уже одобренного
// или отклонённого события возвращается ErrInvalidTransition.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, to domain.ReviewStatus, notes, reviewer string) (domain.Event, error) {
	return s.transition(ctx, "review.Decide()", id, to, notes, reviewer, true)
}

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, to domain.ReviewStatus, notes, reviewer string, pendingOnly bool) (domain.Event, error) {
	log := s.log.With(slog.String("op", op), slog.String("event_id", id.String()))

	if !to.Valid() {
		return domain.Event{}, fmt.Errorf("%s: %q: %w", op, to, domain.ErrInvalidStatus)
	}

	current, err := s.repo.FindEventByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if pendingOnly && current.ReviewStatus != domain.ReviewStatusPending {
		return domain.Event{}, fmt.Errorf("%s: already %s: %w", op, current.ReviewStatus, domain.ErrInvalidTransition)
	}
	if !CanTransition(current.ReviewStatus, to) {
		return domain.Event{}, fmt.Errorf("%s: %s -> %s: %w", op, current.ReviewStatus, to, domain.ErrInvalidTransition)
	}

	now := s.now()
	change := domain.ReviewChange{
		From: current.ReviewStatus,
		Review: domain.Review{
			Status:     to,
			Notes:      notes,
			ReviewedAt: now,
			ReviewedBy: reviewer,
		},
	}
	switch {
	case to == domain.ReviewStatusRejected:
		change.Tombstone = &domain.Tombstone{
			URL:       current.CandidateURL,
			EventID:   current.ID,
			Reason:    notes,
			CreatedBy: reviewer,
			CreatedAt: now,
		}
	case current.ReviewStatus == domain.ReviewStatusRejected:
		change.Untombstone = true
	}

	updated, err := s.repo.UpdateReview(ctx, id, change)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.ReviewTransition(string(to))

	log.Info("review transition applied",
		slog.String("from", string(current.ReviewStatus)),
		slog.String("to", string(to)),
		slog.String("reviewer", reviewer),
		slog.Bool("publishable", updated.Publishable),
	)
	return updated, nil
}

// Overview - список событий для модерации со сводкой по статусам.
type Overview struct {
	Events  []domain.Event
	Summary map[domain.ReviewStatus]int
}

// Overview собирает список для админки.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	op := "review.Overview()"

	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("%s: %w", op, err)
	}
	summary, err := s.repo.CountByReviewStatus(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("%s: %w", op, err)
	}
	return Overview{Events: events, Summary: summary}, nil
}

// Pending возвращает события, ждущие решения, от старых к новым.
func (s *Service) Pending(ctx context.Context) ([]domain.Event, error) {
	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("review.Pending(): %w", err)
	}
	pending := make([]domain.Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ReviewStatus == domain.ReviewStatusPending {
			pending = append(pending, events[i])
		}
	}
	return pending, nil
}
