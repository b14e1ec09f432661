package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"talent-hub/backend/internal/profile/domain"
)

// uniqueViolation is the Postgres error code for unique-constraint failures.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the profile for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const q = `
		SELECT id, email, name, role, status, position, level, points, created_at, updated_at
		FROM profiles WHERE id = $1`
	var p domain.Profile
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Email, &p.Name, &p.Role, &p.Status,
		&p.Position, &p.Level, &p.Points, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Create persists the profile. The profile must have ID set. Returns
// ErrDuplicate when a row with the same id already exists.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Profile) error {
	const q = `
		INSERT INTO profiles (id, email, name, role, status, position, level, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.Email, p.Name, string(p.Role), string(p.Status),
		p.Position, p.Level, p.Points, p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
