package repositories

import (
	"context"
	"fmt"

	"taxEvents/internal/models/domain"

	"github.com/jmoiron/sqlx"
)

// IsTombstoned сообщает, запрещён ли повторный приём url.
func (r *Repository) IsTombstoned(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM event_tombstones WHERE url = $1)`

	if err := r.DB.GetContext(ctx, &exists, query, url); err != nil {
		return false, fmt.Errorf("error in IsTombstoned(): %w", err)
	}
	return exists, nil
}

// CreateTombstone идемпотентен: для уже запрещённого URL остаётся первая запись.
func (r *Repository) CreateTombstone(ctx context.Context, t domain.Tombstone) error {
	if err := insertTombstone(ctx, r.DB, t); err != nil {
		return fmt.Errorf("error in CreateTombstone(): %w", err)
	}
	return nil
}

func (r *Repository) DeleteTombstone(ctx context.Context, url string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM event_tombstones WHERE url = $1`, url); err != nil {
		return fmt.Errorf("error in DeleteTombstone(): %w", err)
	}
	return nil
}

func insertTombstone(ctx context.Context, db sqlx.ExecerContext, t domain.Tombstone) error {
	insertQuery := `INSERT INTO event_tombstones (url, event_id, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO NOTHING`

	_, err := db.ExecContext(ctx, insertQuery, t.URL, t.EventID, t.Reason, t.CreatedBy, t.CreatedAt)
	return err
}
