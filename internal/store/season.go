package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Season struct {
	ID        string
	StartedAt time.Time
	IsActive  bool
}

type SeasonStore struct {
	db *pgxpool.Pool
}

func NewSeasonStore(db *pgxpool.Pool) *SeasonStore {
	return &SeasonStore{db: db}
}

func (s *SeasonStore) Active(ctx context.Context) (*Season, error) {
	se := &Season{}
	err := s.db.QueryRow(ctx, `
		SELECT id, started_at, is_active FROM seasons WHERE is_active = TRUE
	`).Scan(&se.ID, &se.StartedAt, &se.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return se, err
}

// Begin deactivates the current season and opens a new one.
func (s *SeasonStore) Begin(ctx context.Context, id string) (*Season, error) {
	_, _ = s.db.Exec(ctx, `UPDATE seasons SET is_active = FALSE WHERE is_active = TRUE`)

	se := &Season{}
	err := s.db.QueryRow(ctx, `
		INSERT INTO seasons (id, started_at, is_active) VALUES ($1, NOW(), TRUE)
		RETURNING id, started_at, is_active
	`, id).Scan(&se.ID, &se.StartedAt, &se.IsActive)
	return se, err
}
