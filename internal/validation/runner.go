package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/linkhealth"
	"taxEvents/internal/metrics"
	"taxEvents/internal/models/domain"
	"taxEvents/internal/utils/logger/sl"

	"github.com/google/uuid"
)

// Repository определяет операции хранилища, нужные перепроверке.
type Repository interface {
	ListEventsForCheck(ctx context.Context, limit int) ([]domain.Event, error)
	FindEventByID(ctx context.Context, id uuid.UUID) (domain.Event, error)
	UpdateLinkHealth(ctx context.Context, id uuid.UUID, health domain.LinkHealth, checkedAt time.Time) (domain.Event, error)
	ValidationStats(ctx context.Context, now time.Time) (domain.ValidationStats, error)
}

// Runner перепроверяет ссылки событий ограниченными пачками. Параллельные запуски допустимы:
// каждая запись - идемпотентное обновление одной строки по ключу.
type Runner struct {
	log          *slog.Logger
	repo         Repository
	checker      linkhealth.HealthChecker
	metrics      *metrics.Metrics
	batchSize    int
	maxBatchSize int
	delay        time.Duration
	minScore     int
	now          func() time.Time
}

// New создаёт новый экземпляр Runner.
func New(log *slog.Logger, repo Repository, checker linkhealth.HealthChecker, cfg *config.Config, m *metrics.Metrics) *Runner {
	return &Runner{
		log:          log,
		repo:         repo,
		checker:      checker,
		metrics:      m,
		batchSize:    cfg.ValidationConfig.BatchSize,
		maxBatchSize: cfg.ValidationConfig.MaxBatchSize,
		delay:        cfg.ValidationConfig.DelayBetweenChecks,
		minScore:     cfg.LinkHealthConfig.MinPublishableScore,
		now:          time.Now,
	}
}

// BatchSize ограничивает размер пачки настройками. Ноль или отрицательное значение дают размер по умолчанию.
func (r *Runner) BatchSize(n int) int {
	if n <= 0 {
		return r.batchSize
	}
	if r.maxBatchSize > 0 && n > r.maxBatchSize {
		return r.maxBatchSize
	}
	return n
}

// Run проверяет до n событий, сначала непроверенные. Ошибки по отдельным событиям
// считаются в Errors и не прерывают пачку.
func (r *Runner) Run(ctx context.Context, n int) domain.ValidationResult {
	op := "Runner.Run()"
	log := r.log.With(slog.String("op", op))
	started := time.Now()
	defer r.metrics.ObserveRun("validation", started)

	var result domain.ValidationResult

	limit := r.BatchSize(n)
	events, err := r.repo.ListEventsForCheck(ctx, limit)
	if err != nil {
		log.Error("failed to select events for check", sl.Err(err))
		result.Errors++
		return result
	}

	for i, e := range events {
		if i > 0 && !r.pause(ctx) {
			log.Warn("validation run cancelled", slog.Int("remaining", len(events)-i))
			break
		}

		result.Processed++
		updated, health, err := r.check(ctx, e)
		if err != nil {
			result.Errors++
			r.metrics.Check(metrics.CheckError, 0)
			log.Error("failed to store link health",
				slog.String("event_id", e.ID.String()),
				sl.Err(err),
			)
			continue
		}

		result.Validated++
		if updated.Publishable {
			result.Publishable++
		}
		if health.Status == nil {
			result.Unreachable++
		}
		r.metrics.Check(r.outcome(health), health.Score)
	}

	if stats, err := r.repo.ValidationStats(ctx, r.now()); err == nil {
		r.metrics.SetPublishable(stats.Publishable)
	} else {
		log.Warn("failed to read validation stats", sl.Err(err))
	}

	log.Info("validation run finished",
		slog.Int("processed", result.Processed),
		slog.Int("validated", result.Validated),
		slog.Int("publishable", result.Publishable),
		slog.Int("unreachable", result.Unreachable),
		slog.Int("errors", result.Errors),
		slog.Duration("took", time.Since(started)),
	)
	return result
}

// RunOne перепроверяет одно событие в обход общего кэша.
func (r *Runner) RunOne(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	op := "Runner.RunOne()"

	e, err := r.repo.FindEventByID(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	updated, health, err := r.check(linkhealth.NoCache(ctx), e)
	if err != nil {
		r.metrics.Check(metrics.CheckError, 0)
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	r.metrics.Check(r.outcome(health), health.Score)

	return updated, nil
}

// Stats возвращает агрегаты проверки ссылок.
func (r *Runner) Stats(ctx context.Context) (domain.ValidationStats, error) {
	stats, err := r.repo.ValidationStats(ctx, r.now())
	if err != nil {
		return domain.ValidationStats{}, fmt.Errorf("Runner.Stats(): %w", err)
	}
	return stats, nil
}

func (r *Runner) check(ctx context.Context, e domain.Event) (domain.Event, domain.LinkHealth, error) {
	health := r.checker.Check(ctx, e.CandidateURL)
	updated, err := r.repo.UpdateLinkHealth(ctx, e.ID, health, r.now())
	return updated, health, err
}

func (r *Runner) outcome(h domain.LinkHealth) string {
	switch {
	case h.Status == nil:
		return metrics.CheckUnreachable
	case h.Score >= r.minScore:
		return metrics.CheckHealthy
	default:
		return metrics.CheckDegraded
	}
}

// pause выдерживает паузу между запросами. Возвращает false, если ctx завершён.
func (r *Runner) pause(ctx context.Context) bool {
	if r.delay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
