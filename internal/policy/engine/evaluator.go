package engine

import (
	"context"

	"talent-hub/backend/internal/profile/domain"
)

// Evaluator decides whether a synced profile may hold a session.
type Evaluator interface {
	// Admit returns false when the profile must not retain a live session
	// (e.g. suspended). An error means the policy could not be evaluated.
	Admit(ctx context.Context, p *domain.Profile) (bool, error)
}
