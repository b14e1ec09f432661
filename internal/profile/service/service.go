// Package service provides profile lookup-or-create on top of the repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talent-hub/backend/internal/authevent"
	"talent-hub/backend/internal/profile/domain"
	"talent-hub/backend/internal/profile/repository"
)

// Repo is the minimal profile repository needed by the service.
type Repo interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
}

// Service guarantees a local profile record exists for every authenticated
// principal.
type Service struct {
	repo Repo
	nowF func() time.Time
}

// New returns a Service over the given repository.
func New(repo Repo) *Service {
	return &Service{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
}

// EnsureProfile returns the profile for the principal, creating it with
// deterministic defaults if absent. Idempotent under races: when a concurrent
// caller wins the insert, the duplicate-key failure is resolved by re-fetching
// the now-existing row.
func (s *Service) EnsureProfile(ctx context.Context, p *authevent.SessionPayload) (*domain.Profile, error) {
	if p == nil || p.UserID == "" {
		return nil, errors.New("profile: payload has no principal id")
	}
	existing, err := s.repo.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("profile: lookup %s: %w", p.UserID, err)
	}
	if existing != nil {
		return existing, nil
	}

	fresh := domain.NewDefault(p, s.nowF())
	if err := fresh.Validate(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	err = s.repo.Create(ctx, fresh)
	if err == nil {
		return fresh, nil
	}
	if errors.Is(err, repository.ErrDuplicate) {
		won, gerr := s.repo.GetByID(ctx, p.UserID)
		if gerr != nil {
			return nil, fmt.Errorf("profile: re-fetch after duplicate %s: %w", p.UserID, gerr)
		}
		if won != nil {
			return won, nil
		}
		// Row vanished between insert and re-fetch; surface the original error.
	}
	return nil, fmt.Errorf("profile: create %s: %w", p.UserID, err)
}
