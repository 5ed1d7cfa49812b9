// Package service implements the refresh-session lifecycle: creation,
// validation, rotation, revocation, and expiry housekeeping.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"localmart/backend/internal/audit"
	"localmart/backend/internal/security"
	"localmart/backend/internal/session/domain"
	"localmart/backend/internal/session/repository"
)

// Sentinel errors for session operations. The transport layer maps all of
// them to a single "please log in again" outcome; the distinctions exist for
// auditing and for callers that must react to the reuse cascade.
var (
	// ErrSessionNotFound is returned when no session exists for the token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session's fixed expiry has passed.
	// Expiry is not evidence of theft, so no cascade is triggered.
	ErrSessionExpired = errors.New("session expired")
	// ErrTokenReuse is returned when a revoked token is presented again. By the
	// time the caller sees it, every session of the owning user has been revoked.
	ErrTokenReuse = errors.New("refresh token reuse detected; all sessions revoked")
	// ErrUnavailable is returned when the session store cannot be reached or
	// the call is cancelled. Retryable; never conflated with ErrSessionNotFound,
	// since a storage hiccup must not trigger the reuse cascade.
	ErrUnavailable = errors.New("session store unavailable")
)

// ValidateResult is the structured outcome of Validate. CascadeRevoked is set
// when reuse detection fired and the user's other sessions were revoked as a
// side effect; it accompanies ErrTokenReuse so the cascade is observable to
// callers and tests rather than implicit.
type ValidateResult struct {
	UserID         string
	CascadeRevoked bool
}

// Manager owns the refresh-session state machine. It holds no mutable state
// of its own; every decision reads the store, so revocations performed by
// other instances are always visible. Access tokens are out of its scope.
type Manager struct {
	store      repository.Store
	audit      audit.AuditLogger
	refreshTTL time.Duration
}

// NewManager returns a Manager backed by store. auditLog may be nil.
// refreshTTL fixes each session's expiry at creation; rotation never extends it.
func NewManager(store repository.Store, auditLog audit.AuditLogger, refreshTTL time.Duration) *Manager {
	return &Manager{store: store, audit: auditLog, refreshTTL: refreshTTL}
}

// Create generates a new high-entropy session secret for userID, persists an
// active session row, and returns the raw token. The raw value is never stored
// anywhere except that row's token column.
func (m *Manager) Create(ctx context.Context, userID, deviceInfo, ipAddress string) (string, error) {
	token, err := security.GenerateSessionSecret()
	if err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	now := time.Now().UTC()
	sess := &domain.RefreshSession{
		ID:         uuid.New().String(),
		Token:      token,
		UserID:     userID,
		Status:     domain.StatusActive,
		ExpiresAt:  now.Add(m.refreshTTL),
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Insert(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Validate checks whether token backs a usable session and returns the owning
// user. Presenting a revoked token is treated as a theft signal: every session
// of the owning user is revoked before ErrTokenReuse is returned, with the
// cascade reflected in the result. An expired session fails with
// ErrSessionExpired and is deleted as housekeeping.
func (m *Manager) Validate(ctx context.Context, token string) (*ValidateResult, error) {
	sess, err := m.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.check(ctx, sess)
}

// lookup fetches the session row for token, mapping storage failures to
// ErrUnavailable and missing rows to ErrSessionNotFound.
func (m *Manager) lookup(ctx context.Context, token string) (*domain.RefreshSession, error) {
	sess, err := m.store.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// check applies the state machine to an already-fetched session.
func (m *Manager) check(ctx context.Context, sess *domain.RefreshSession) (*ValidateResult, error) {
	now := time.Now().UTC()
	if sess.Status == domain.StatusRevoked {
		return m.cascade(ctx, sess)
	}
	if sess.Expired(now) {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			log.Printf("session: housekeeping delete of expired session %s failed: %v", sess.ID, err)
		}
		return nil, ErrSessionExpired
	}
	return &ValidateResult{UserID: sess.UserID}, nil
}

// cascade handles a revoked token being presented again: revoke everything the
// owning user has, audit the event, and fail with ErrTokenReuse. The returned
// result records that the cascade ran.
func (m *Manager) cascade(ctx context.Context, sess *domain.RefreshSession) (*ValidateResult, error) {
	if err := m.store.RevokeAllByUser(ctx, sess.UserID); err != nil {
		// Fail closed: the caller is rejected either way, but the cascade
		// should be retried on the next presentation.
		log.Printf("session: revoke-all for user %s after reuse of %s failed: %v",
			sess.UserID, security.AbbreviateSecret(sess.Token), err)
	}
	if m.audit != nil {
		m.audit.LogEvent(ctx, sess.UserID, "token_reuse", "refresh_session",
			fmt.Sprintf("session_id=%s token=%s", sess.ID, security.AbbreviateSecret(sess.Token)))
	}
	return &ValidateResult{UserID: sess.UserID, CascadeRevoked: true}, ErrTokenReuse
}

// Rotate exchanges oldToken for a brand-new session belonging to the same
// user, returning the new token and the owning user's id. The old row is
// revoked with a single conditional update, so of two concurrent rotations of
// the same token exactly one wins; the loser observes the row as already
// revoked and goes down the reuse path.
func (m *Manager) Rotate(ctx context.Context, oldToken, deviceInfo, ipAddress string) (string, string, error) {
	sess, err := m.lookup(ctx, oldToken)
	if err != nil {
		return "", "", err
	}
	if _, err := m.check(ctx, sess); err != nil {
		return "", "", err
	}
	ok, err := m.store.CompareAndSetRevoked(ctx, sess.ID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		// Lost the race: someone else consumed this token between our check
		// and the conditional update. Same theft signal as a revoked lookup.
		_, err := m.cascade(ctx, sess)
		return "", "", err
	}
	token, err := m.Create(ctx, sess.UserID, deviceInfo, ipAddress)
	if err != nil {
		return "", "", err
	}
	return token, sess.UserID, nil
}

// Revoke marks the session for token revoked. Idempotent: an already-revoked
// or missing token is not an error. This is explicit single-session logout.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	sess, err := m.store.GetByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess == nil {
		return nil
	}
	if _, err := m.store.CompareAndSetRevoked(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll marks every active session of userID revoked. Idempotent. Used for
// explicit "log out everywhere" and as the reuse-detection response.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	if err := m.store.RevokeAllByUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if m.audit != nil {
		m.audit.LogEvent(ctx, userID, "revoke_all", "refresh_session", "")
	}
	return nil
}

// RevokeByID revokes one session by its opaque id, scoped to userID. Returns
// whether a matching session existed; sessions of other users are reported as
// missing rather than forbidden, so their existence does not leak.
func (m *Manager) RevokeByID(ctx context.Context, userID, sessionID string) (bool, error) {
	sess, err := m.store.GetByID(ctx, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if sess == nil {
		return false, nil
	}
	if _, err := m.store.CompareAndSetRevoked(ctx, sess.ID); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

// ListActive returns summaries of the user's active, unexpired sessions,
// newest first. Raw token values are never included.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]domain.Summary, error) {
	list, err := m.store.ListActiveByUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := make([]domain.Summary, len(list))
	for i, sess := range list {
		out[i] = sess.Summarize()
	}
	return out, nil
}

// SweepExpired deletes rows whose expiry has passed, regardless of status, and
// returns the count. Safe to run concurrently and repeatedly.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
