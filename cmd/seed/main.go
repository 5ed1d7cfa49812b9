// seed inserts a development user for local testing.
// Idempotent: does nothing if dev@example.com already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"localmart/backend/internal/config"
	"localmart/backend/internal/db"
	"localmart/backend/internal/security"
	userdomain "localmart/backend/internal/user/domain"
	userrepo "localmart/backend/internal/user/repository"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "Dev!passw0rd"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users := userrepo.NewPostgresDirectory(database)
	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Printf("seed: %s already exists, nothing to do", devUserEmail)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatalf("seed: hash: %v", err)
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        devUserEmail,
		Name:         "Dev User",
		Role:         userdomain.RoleCustomer,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("seed: create user: %v", err)
	}
	log.Printf("seed: created %s (password %s)", devUserEmail, devPassword)
}
