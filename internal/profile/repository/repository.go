package repository

import (
	"context"
	"errors"

	"talent-hub/backend/internal/profile/domain"
)

// ErrDuplicate is returned by Create when a profile with the same id already
// exists. Callers racing on first sync re-fetch instead of failing.
var ErrDuplicate = errors.New("profile already exists")

// Repository defines persistence for profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
}
