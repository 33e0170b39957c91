package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taxEvents/internal/models/domain"
	"taxEvents/internal/models/repositories"
)

// FindViewerProfile читает атрибуты профиля, нужные для отбора событий.
func (r *Repository) FindViewerProfile(ctx context.Context, id string) (domain.ViewerProfile, error) {
	var p repositories.Profile
	query := `SELECT id, specialties, software, service_states FROM profiles WHERE id = $1 LIMIT 1`

	if err := r.DB.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ViewerProfile{}, fmt.Errorf("profile %s: %w", id, domain.ErrProfileNotFound)
		}
		return domain.ViewerProfile{}, fmt.Errorf("error in FindViewerProfile(): %w", err)
	}

	return domain.ViewerProfile{
		ID:            p.ID,
		Specialties:   []string(p.Specialties),
		Software:      []string(p.Software),
		ServiceStates: []string(p.ServiceStates),
	}, nil
}
