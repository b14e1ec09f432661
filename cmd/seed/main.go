// seed inserts development sample profiles for local testing.
// Idempotent: skips inserts for principals that already have a profile.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"talent-hub/backend/internal/config"
	"talent-hub/backend/internal/db"
	"talent-hub/backend/internal/profile/domain"
	"talent-hub/backend/internal/profile/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewPostgresRepository(conn)
	now := time.Now().UTC()

	samples := []*domain.Profile{
		{
			ID:       "dev-principal-001",
			Email:    "ana.souza@example.com",
			Name:     "Ana Souza",
			Role:     domain.RoleManager,
			Status:   domain.StatusActive,
			Position: "Tech Lead",
			Level:    "Sênior",
			Points:   120,
		},
		{
			ID:       "dev-principal-002",
			Email:    "joao.lima@example.com",
			Name:     "João Lima",
			Role:     domain.RoleEmployee,
			Status:   domain.StatusActive,
			Position: domain.DefaultPosition,
			Level:    domain.DefaultLevel,
		},
		{
			ID:       uuid.NewString(),
			Email:    "suspenso@example.com",
			Name:     "Conta Suspensa",
			Role:     domain.RoleEmployee,
			Status:   domain.StatusSuspended,
			Position: domain.DefaultPosition,
			Level:    domain.DefaultLevel,
		},
	}

	ctx := context.Background()
	for _, p := range samples {
		p.CreatedAt = now
		p.UpdatedAt = now
		if err := p.Validate(); err != nil {
			log.Fatalf("seed: %s: %v", p.Email, err)
		}
		err := repo.Create(ctx, p)
		if errors.Is(err, repository.ErrDuplicate) {
			log.Printf("seed: %s already exists, skipping", p.Email)
			continue
		}
		if err != nil {
			log.Fatalf("seed: insert %s: %v", p.Email, err)
		}
		log.Printf("seed: inserted %s (%s)", p.Email, p.ID)
	}
}
