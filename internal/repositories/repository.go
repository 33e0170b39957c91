package repositories

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"taxEvents/internal/config"
	"taxEvents/internal/models/domain"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Repository - хранилище событий, tombstone и профилей в Postgres.
type Repository struct {
	log    *slog.Logger
	DB     *sqlx.DB
	policy domain.PublishPolicy
	now    func() time.Time
}

// New подключается к Postgres и создаёт схему.
func New(log *slog.Logger, cfg *config.Config) (*Repository, error) {
	op := "repository.New()"
	l := log.With(slog.String("op", op))

	db, err := sqlx.Connect("postgres", cfg.DBConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.DBConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
	}

	r := NewWithDB(log, db, cfg.PublishPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	l.Info("connected to postgres",
		slog.String("host", cfg.DBConfig.Host),
		slog.String("db", cfg.DBConfig.Name),
	)
	return r, nil
}

// NewWithDB оборачивает уже открытое соединение.
func NewWithDB(log *slog.Logger, db *sqlx.DB, policy domain.PublishPolicy) *Repository {
	return &Repository{
		log:    log,
		DB:     db,
		policy: policy,
		now:    time.Now,
	}
}

// EnsureSchema применяет встроенную схему. Все операторы идемпотентны.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("error in EnsureSchema(): %w", err)
	}
	return nil
}

// Shutdown закрывает пул соединений.
func (r *Repository) Shutdown(_ context.Context) error {
	return r.DB.Close()
}
