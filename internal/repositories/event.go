package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/repositories"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const eventColumns = `id, dedupe_key, title, description, start_date, end_date, city, location_state,
	organizer, tags, source, candidate_url, canonical_url, url_status, redirect_chain, link_health_score,
	last_checked_at, review_status, admin_notes, reviewed_at, reviewed_by, suggested_by, suggested_at,
	publishable, created_at, updated_at`

// CreateEvent вставляет новую строку. Строка с тем же dedupe key даёт domain.ErrDuplicateEvent.
func (r *Repository) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	op := "repository.CreateEvent()"

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Publishable = r.policy.Publishable(event, r.now())

	repoEvent := mapToRepo(event)

	insertQuery := `INSERT INTO events (
		id, dedupe_key, title, description, start_date, end_date, city, location_state,
		organizer, tags, source, candidate_url, canonical_url, url_status, redirect_chain, link_health_score,
		last_checked_at, review_status, admin_notes, reviewed_at, reviewed_by, suggested_by, suggested_at,
		publishable, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24,
		CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT (dedupe_key) DO NOTHING
	RETURNING created_at, updated_at`

	err := r.DB.QueryRowxContext(ctx, insertQuery,
		repoEvent.ID,
		repoEvent.DedupeKey,
		repoEvent.Title,
		repoEvent.Description,
		repoEvent.StartDate,
		repoEvent.EndDate,
		repoEvent.City,
		repoEvent.LocationState,
		repoEvent.Organizer,
		repoEvent.Tags,
		repoEvent.Source,
		repoEvent.CandidateURL,
		repoEvent.CanonicalURL,
		repoEvent.URLStatus,
		repoEvent.RedirectChain,
		repoEvent.LinkHealthScore,
		repoEvent.LastCheckedAt,
		repoEvent.ReviewStatus,
		repoEvent.AdminNotes,
		repoEvent.ReviewedAt,
		repoEvent.ReviewedBy,
		repoEvent.SuggestedBy,
		repoEvent.SuggestedAt,
		repoEvent.Publishable,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("%s: %w", op, domain.ErrDuplicateEvent)
		}
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	return event, nil
}

// FindEventByID возвращает domain.ErrEventNotFound, если события нет.
func (r *Repository) FindEventByID(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var repoEvent repositories.Event
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 LIMIT 1`

	err := r.DB.GetContext(ctx, &repoEvent, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("id %s: %w", id, domain.ErrEventNotFound)
		}
		return domain.Event{}, fmt.Errorf("error in FindEventByID(): %w", err)
	}

	return mapToDomain(repoEvent), nil
}

// FindEventByDedupeKey ищет событие по логическому ключу.
func (r *Repository) FindEventByDedupeKey(ctx context.Context, key string) (domain.Event, error) {
	var repoEvent repositories.Event
	query := `SELECT ` + eventColumns + ` FROM events WHERE dedupe_key = $1 LIMIT 1`

	err := r.DB.GetContext(ctx, &repoEvent, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("dedupe key %s: %w", key, domain.ErrEventNotFound)
		}
		return domain.Event{}, fmt.Errorf("error in FindEventByDedupeKey(): %w", err)
	}

	return mapToDomain(repoEvent), nil
}

// UpdateEventDetails переписывает только описательные поля. Колонки модерации и проверки ссылки не трогаются.
func (r *Repository) UpdateEventDetails(ctx context.Context, event domain.Event) (domain.Event, error) {
	repoEvent := mapToRepo(event)

	updateQuery := `UPDATE events SET
		title = $1, description = $2, start_date = $3, end_date = $4, city = $5, location_state = $6,
		organizer = $7, tags = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $9
		RETURNING ` + eventColumns

	var updated repositories.Event
	err := r.DB.QueryRowxContext(ctx, updateQuery,
		repoEvent.Title,
		repoEvent.Description,
		repoEvent.StartDate,
		repoEvent.EndDate,
		repoEvent.City,
		repoEvent.LocationState,
		repoEvent.Organizer,
		repoEvent.Tags,
		repoEvent.ID,
	).StructScan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("id %s: %w", event.ID, domain.ErrEventNotFound)
		}
		return domain.Event{}, fmt.Errorf("error in UpdateEventDetails(): %w", err)
	}

	return mapToDomain(updated), nil
}

// UpdateLinkHealth сохраняет результат проверки и пересчитывает publishable по текущему статусу строки.
func (r *Repository) UpdateLinkHealth(ctx context.Context, id uuid.UUID, health domain.LinkHealth, checkedAt time.Time) (domain.Event, error) {
	updateQuery := `UPDATE events SET
		url_status = $2, canonical_url = $3, redirect_chain = $4, link_health_score = $5, last_checked_at = $6,
		publishable = (review_status = 'approved' AND $5::int >= $7::int AND $6::timestamptz >= $8::timestamptz),
		updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING ` + eventColumns

	var updated repositories.Event
	err := r.DB.QueryRowxContext(ctx, updateQuery,
		id,
		health.Status,
		health.CanonicalURL,
		stringArray(health.RedirectChain),
		health.Score,
		checkedAt,
		r.policy.MinScore,
		r.policy.FreshSince(r.now()),
	).StructScan(&updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("id %s: %w", id, domain.ErrEventNotFound)
		}
		return domain.Event{}, fmt.Errorf("error in UpdateLinkHealth(): %w", err)
	}

	return mapToDomain(updated), nil
}

// UpdateReview применяет переход модерации и его tombstone в одной транзакции.
// Строка, уже не находящаяся в change.From, даёт domain.ErrInvalidTransition.
func (r *Repository) UpdateReview(ctx context.Context, id uuid.UUID, change domain.ReviewChange) (domain.Event, error) {
	op := "repository.UpdateReview()"

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	updateQuery := `UPDATE events SET
		review_status = $2, admin_notes = $3, reviewed_at = $4, reviewed_by = $5,
		publishable = ($2::text = 'approved' AND link_health_score >= $6::int
			AND last_checked_at IS NOT NULL AND last_checked_at >= $7::timestamptz),
		updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND review_status = $8
		RETURNING ` + eventColumns

	var updated repositories.Event
	err = tx.QueryRowxContext(ctx, updateQuery,
		id,
		string(change.Review.Status),
		change.Review.Notes,
		change.Review.ReviewedAt,
		nullableString(change.Review.ReviewedBy),
		r.policy.MinScore,
		r.policy.FreshSince(r.now()),
		string(change.From),
	).StructScan(&updated)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("%s: %w", op, err)
		}
		var current string
		if err := tx.GetContext(ctx, &current, `SELECT review_status FROM events WHERE id = $1`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Event{}, fmt.Errorf("%s: id %s: %w", op, id, domain.ErrEventNotFound)
			}
			return domain.Event{}, fmt.Errorf("%s: %w", op, err)
		}
		return domain.Event{}, fmt.Errorf("%s: event is %s, expected %s: %w", op, current, change.From, domain.ErrInvalidTransition)
	}

	if t := change.Tombstone; t != nil {
		if err := insertTombstone(ctx, tx, *t); err != nil {
			return domain.Event{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if change.Untombstone {
		if _, err := tx.ExecContext(ctx, liftTombstoneQuery, updated.CandidateURL, updated.ID); err != nil {
			return domain.Event{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	return mapToDomain(updated), nil
}

// liftTombstoneQuery оставляет tombstone, пока другое событие с тем же URL отклонено.
const liftTombstoneQuery = `DELETE FROM event_tombstones
	WHERE url = $1
	AND NOT EXISTS (
		SELECT 1 FROM events
		WHERE candidate_url = $1 AND review_status = 'rejected' AND id <> $2
	)`

func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	var repoEvents []repositories.Event
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY created_at DESC`

	err := r.DB.SelectContext(ctx, &repoEvents, query)
	if err != nil {
		return nil, fmt.Errorf("error in ListEvents(): %w", err)
	}

	return mapAllToDomain(repoEvents), nil
}

// ListEventsForCheck возвращает до limit неотклонённых событий: сначала непроверенные, затем давно проверенные.
func (r *Repository) ListEventsForCheck(ctx context.Context, limit int) ([]domain.Event, error) {
	var repoEvents []repositories.Event
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE review_status <> 'rejected'
		ORDER BY last_checked_at ASC NULLS FIRST, created_at ASC
		LIMIT $1`

	err := r.DB.SelectContext(ctx, &repoEvents, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error in ListEventsForCheck(): %w", err)
	}

	return mapAllToDomain(repoEvents), nil
}

// ListPublishableEvents возвращает предстоящие события с флагом publishable и свежей проверкой на момент now.
func (r *Repository) ListPublishableEvents(ctx context.Context, now time.Time) ([]domain.Event, error) {
	var repoEvents []repositories.Event
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE publishable
			AND review_status = 'approved'
			AND link_health_score >= $1
			AND last_checked_at >= $2
			AND COALESCE(end_date, start_date) >= $3
		ORDER BY start_date ASC`

	err := r.DB.SelectContext(ctx, &repoEvents, query, r.policy.MinScore, r.policy.FreshSince(now), now)
	if err != nil {
		return nil, fmt.Errorf("error in ListPublishableEvents(): %w", err)
	}

	return mapAllToDomain(repoEvents), nil
}

// CountByReviewStatus считает события по статусам модерации.
func (r *Repository) CountByReviewStatus(ctx context.Context) (map[domain.ReviewStatus]int, error) {
	var rows []repositories.ReviewStatusCount
	query := `SELECT review_status, COUNT(*) AS count FROM events GROUP BY review_status`

	if err := r.DB.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error in CountByReviewStatus(): %w", err)
	}

	counts := map[domain.ReviewStatus]int{
		domain.ReviewStatusPending:  0,
		domain.ReviewStatusApproved: 0,
		domain.ReviewStatusRejected: 0,
	}
	for _, row := range rows {
		counts[domain.ReviewStatus(row.ReviewStatus)] = row.Count
	}
	return counts, nil
}

// ValidationStats считает агрегаты проверки ссылок.
func (r *Repository) ValidationStats(ctx context.Context, now time.Time) (domain.ValidationStats, error) {
	var stats domain.ValidationStats
	query := `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE publishable AND last_checked_at >= $2) AS publishable,
		COUNT(*) FILTER (WHERE last_checked_at IS NULL) AS unvalidated,
		COUNT(*) FILTER (WHERE last_checked_at IS NOT NULL AND link_health_score < $1) AS low_score
		FROM events`

	if err := r.DB.GetContext(ctx, &stats, query, r.policy.MinScore, r.policy.FreshSince(now)); err != nil {
		return domain.ValidationStats{}, fmt.Errorf("error in ValidationStats(): %w", err)
	}
	return stats, nil
}

// DeleteAllEvents удаляет все события вместе с их tombstone.
func (r *Repository) DeleteAllEvents(ctx context.Context) (int64, error) {
	op := "repository.DeleteAllEvents()"

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_tombstones`); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: error checking rows affected: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return deleted, nil
}

func mapToRepo(e domain.Event) repositories.Event {
	return repositories.Event{
		BaseModel: repositories.BaseModel{
			ID:        e.ID,
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		},
		DedupeKey:       e.DedupeKey,
		Title:           e.Title,
		Description:     e.Description,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		City:            e.City,
		LocationState:   e.State,
		Organizer:       e.Organizer,
		Tags:            stringArray(e.Tags),
		Source:          string(e.Source),
		CandidateURL:    e.CandidateURL,
		CanonicalURL:    e.CanonicalURL,
		URLStatus:       e.URLStatus,
		RedirectChain:   stringArray(e.RedirectChain),
		LinkHealthScore: e.LinkHealthScore,
		LastCheckedAt:   e.LastCheckedAt,
		ReviewStatus:    string(e.ReviewStatus),
		AdminNotes:      e.AdminNotes,
		ReviewedAt:      e.ReviewedAt,
		ReviewedBy:      e.ReviewedBy,
		SuggestedBy:     e.SuggestedBy,
		SuggestedAt:     e.SuggestedAt,
		Publishable:     e.Publishable,
	}
}

func mapToDomain(e repositories.Event) domain.Event {
	return domain.Event{
		ID:              e.ID,
		DedupeKey:       e.DedupeKey,
		Title:           e.Title,
		Description:     e.Description,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		City:            e.City,
		State:           e.LocationState,
		Organizer:       e.Organizer,
		Tags:            []string(e.Tags),
		Source:          domain.Source(e.Source),
		CandidateURL:    e.CandidateURL,
		CanonicalURL:    e.CanonicalURL,
		URLStatus:       e.URLStatus,
		RedirectChain:   []string(e.RedirectChain),
		LinkHealthScore: e.LinkHealthScore,
		LastCheckedAt:   e.LastCheckedAt,
		ReviewStatus:    domain.ReviewStatus(e.ReviewStatus),
		AdminNotes:      e.AdminNotes,
		ReviewedAt:      e.ReviewedAt,
		ReviewedBy:      e.ReviewedBy,
		SuggestedBy:     e.SuggestedBy,
		SuggestedAt:     e.SuggestedAt,
		Publishable:     e.Publishable,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func mapAllToDomain(events []repositories.Event) []domain.Event {
	result := make([]domain.Event, len(events))
	for i, e := range events {
		result[i] = mapToDomain(e)
	}
	return result
}

// stringArray не даёт отправить NULL в NOT NULL колонку text[] для nil slice.
func stringArray(s []string) pq.StringArray {
	if s == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(s)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
