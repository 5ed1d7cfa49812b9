package repository

import (
	"context"
	"time"

	"localmart/backend/internal/user/domain"
)

// Directory defines persistence for user accounts. Lookups return nil for
// missing users; errors are reserved for storage failures.
type Directory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateLastLogin stamps the user's last successful login. Missing users
	// are a no-op.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}
