package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"localmart/backend/internal/session/domain"
)

// PostgresStore implements Store on Postgres via sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore returns a session store that uses the given db for persistence.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert persists the session row. The session must have ID and Token set.
func (s *PostgresStore) Insert(ctx context.Context, sess *domain.RefreshSession) error {
	const q = `INSERT INTO refresh_sessions
		(id, token, user_id, status, expires_at, device_info, ip_address, created_at, updated_at)
		VALUES (:id, :token, :user_id, :status, :expires_at, :device_info, :ip_address, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, sess)
	return err
}

// GetByToken returns the session for token, or nil if not found.
// It returns an error only for storage failures, not for missing rows.
func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*domain.RefreshSession, error) {
	var sess domain.RefreshSession
	const q = `SELECT id, token, user_id, status, expires_at,
		COALESCE(device_info, '') AS device_info, COALESCE(ip_address, '') AS ip_address,
		created_at, updated_at
		FROM refresh_sessions WHERE token = $1`
	if err := s.db.GetContext(ctx, &sess, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// GetByID returns the session with id owned by userID, or nil if no such
// session exists for that user.
func (s *PostgresStore) GetByID(ctx context.Context, userID, sessionID string) (*domain.RefreshSession, error) {
	var sess domain.RefreshSession
	const q = `SELECT id, token, user_id, status, expires_at,
		COALESCE(device_info, '') AS device_info, COALESCE(ip_address, '') AS ip_address,
		created_at, updated_at
		FROM refresh_sessions WHERE id = $1 AND user_id = $2`
	if err := s.db.GetContext(ctx, &sess, q, sessionID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// CompareAndSetRevoked flips the session from active to revoked in one
// conditional UPDATE. Returns true iff this call performed the transition.
func (s *PostgresStore) CompareAndSetRevoked(ctx context.Context, sessionID string) (bool, error) {
	const q = `UPDATE refresh_sessions SET status = 'revoked', updated_at = now()
		WHERE id = $1 AND status = 'active'`
	res, err := s.db.ExecContext(ctx, q, sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListActiveByUser returns the user's active, unexpired sessions, newest first.
func (s *PostgresStore) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.RefreshSession, error) {
	var list []*domain.RefreshSession
	const q = `SELECT id, token, user_id, status, expires_at,
		COALESCE(device_info, '') AS device_info, COALESCE(ip_address, '') AS ip_address,
		created_at, updated_at
		FROM refresh_sessions
		WHERE user_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &list, q, userID, now); err != nil {
		return nil, err
	}
	return list, nil
}

// RevokeAllByUser marks every active session of the user revoked. Idempotent.
func (s *PostgresStore) RevokeAllByUser(ctx context.Context, userID string) error {
	const q = `UPDATE refresh_sessions SET status = 'revoked', updated_at = now()
		WHERE user_id = $1 AND status = 'active'`
	_, err := s.db.ExecContext(ctx, q, userID)
	return err
}

// Delete removes a single session row. Missing rows are not an error.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE id = $1`, sessionID)
	return err
}

// DeleteExpired removes rows whose expiry is strictly before now and returns
// the count. The predicate re-reads expires_at inside the statement, so a
// concurrent Create can never lose an unexpired row to a stale read.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
