package repository

import (
	"context"
	"time"

	"localmart/backend/internal/session/domain"
)

// Store defines persistence for refresh sessions. It is the single source of
// truth for session state: the manager never caches a session's status across
// calls, so a revoke performed by another instance is always observed.
type Store interface {
	// Insert persists a new session row.
	Insert(ctx context.Context, s *domain.RefreshSession) error
	// GetByToken returns the session for the given token, or nil if not found.
	// It returns an error only for storage failures, not for missing rows.
	GetByToken(ctx context.Context, token string) (*domain.RefreshSession, error)
	// GetByID returns the session with the given id owned by userID, or nil if
	// no such session exists. Sessions of other users are indistinguishable
	// from missing ones.
	GetByID(ctx context.Context, userID, sessionID string) (*domain.RefreshSession, error)
	// CompareAndSetRevoked atomically flips the session from active to revoked.
	// Returns true iff this call performed the transition; false when the row
	// is already revoked or missing. Rotation's cross-instance atomicity rests
	// on this single conditional update.
	CompareAndSetRevoked(ctx context.Context, sessionID string) (bool, error)
	// ListActiveByUser returns the user's sessions with status active and
	// expiry after now, newest-created first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshSession, error)
	// RevokeAllByUser marks every active session of the user revoked. Idempotent.
	RevokeAllByUser(ctx context.Context, userID string) error
	// Delete removes a single session row by id. Missing rows are not an error.
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes rows whose expiry is before now, regardless of
	// status, and returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
