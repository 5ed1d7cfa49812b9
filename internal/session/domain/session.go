package domain

import "time"

// Status is the stored refresh-session state. Expiry is derived from ExpiresAt
// rather than stored, so a session is never in both states at once.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// RefreshSession is one row per issued refresh token. The token value is a
// high-entropy secret used only as a lookup key; it is returned to the client
// exactly once and never logged in full.
type RefreshSession struct {
	ID         string    `db:"id"`
	Token      string    `db:"token"`
	UserID     string    `db:"user_id"`
	Status     Status    `db:"status"`
	ExpiresAt  time.Time `db:"expires_at"`
	DeviceInfo string    `db:"device_info"`
	IPAddress  string    `db:"ip_address"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Expired reports whether the session's fixed expiry has passed.
func (s *RefreshSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session can still be exchanged for new tokens.
// The owning user's active flag is checked by the caller, not here.
func (s *RefreshSession) Usable(now time.Time) bool {
	return s.Status == StatusActive && !s.Expired(now)
}

// Summary is the caller-facing view of a session for device listings.
// It deliberately omits the token value.
type Summary struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"device_info,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Summarize converts a session to its listing view.
func (s *RefreshSession) Summarize() Summary {
	return Summary{
		ID:         s.ID,
		DeviceInfo: s.DeviceInfo,
		IPAddress:  s.IPAddress,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}
