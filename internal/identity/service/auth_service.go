// Package service orchestrates registration, login, and the refresh flow on
// top of the session manager and user directory.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"localmart/backend/internal/audit"
	auditdomain "localmart/backend/internal/audit/domain"
	auditrepo "localmart/backend/internal/audit/repository"
	"localmart/backend/internal/security"
	sessiondomain "localmart/backend/internal/session/domain"
	sessionservice "localmart/backend/internal/session/service"
	userdomain "localmart/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the HTTP layer maps them to statuses.
var (
	ErrUserAlreadyExists      = errors.New("email already registered")
	ErrWeakPassword           = errors.New("password does not meet policy")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountInactive        = errors.New("account is deactivated")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrUserNotFoundOrInactive = errors.New("user not found or inactive")
)

// dummyPasswordHash is compared against when the email is unknown, so both
// login failure paths cost one bcrypt comparison and stay indistinguishable.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

var commonPasswords = []string{"password", "12345678", "qwerty", "abc123", "password123"}

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// Sessions is the slice of the session manager the auth service needs.
type Sessions interface {
	Create(ctx context.Context, userID, deviceInfo, ipAddress string) (string, error)
	Rotate(ctx context.Context, oldToken, deviceInfo, ipAddress string) (newToken, userID string, err error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID string) error
	RevokeByID(ctx context.Context, userID, sessionID string) (bool, error)
	ListActive(ctx context.Context, userID string) ([]sessiondomain.Summary, error)
}

// UserDirectory is the minimal user repository needed by the auth service.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// AuthResult holds the outcome of Register, Login, or Refresh.
type AuthResult struct {
	UserID       string
	Email        string
	Name         string
	Role         string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthService implements password register, login, refresh, and logout.
type AuthService struct {
	users       UserDirectory
	sessions    Sessions
	hasher      *security.Hasher
	signer      *security.TokenSigner
	audit       audit.AuditLogger
	activity    auditrepo.Repository
	accessTTL   time.Duration
	minPassword int
}

// NewAuthService returns an AuthService with the given dependencies.
// auditLog and activity may be nil. minPassword below 8 is raised to 8.
func NewAuthService(
	users UserDirectory,
	sessions Sessions,
	hasher *security.Hasher,
	signer *security.TokenSigner,
	auditLog audit.AuditLogger,
	activity auditrepo.Repository,
	accessTTL time.Duration,
	minPassword int,
) *AuthService {
	if minPassword < 8 {
		minPassword = 8
	}
	return &AuthService{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		signer:      signer,
		audit:       auditLog,
		activity:    activity,
		accessTTL:   accessTTL,
		minPassword: minPassword,
	}
}

// Register creates an active customer account and signs it straight in: a
// refresh session is opened for the new user and both tokens are returned, the
// same shape Login produces. The password is checked against the policy before
// hashing; the first failing rule is reported.
func (s *AuthService) Register(ctx context.Context, email, password, name, deviceInfo, ipAddress string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         userdomain.RoleCustomer,
		PasswordHash: hashed,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	refreshToken, err := s.sessions.Create(ctx, user.ID, deviceInfo, ipAddress)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.signer.Issue(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}

// Login authenticates with email/password, opens a refresh session, and
// returns both tokens. Unknown email and wrong password produce the identical
// ErrInvalidCredentials; the unknown-email path still runs a bcrypt comparison
// against a fixed dummy hash so timing does not reveal which case occurred.
func (s *AuthService) Login(ctx context.Context, email, password, deviceInfo, ipAddress string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.hasher.Verify(password, dummyPasswordHash)
		s.logAuthEvent(ctx, "", "login_failed", "unknown email")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logAuthEvent(ctx, user.ID, "login_failed", "wrong password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logAuthEvent(ctx, user.ID, "login_failed", "account inactive")
		return nil, ErrAccountInactive
	}
	refreshToken, err := s.sessions.Create(ctx, user.ID, deviceInfo, ipAddress)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.signer.Issue(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	return &AuthResult{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}

// Refresh exchanges a refresh token for a new token pair. The user record is
// re-read on every refresh so a deactivated account loses its sessions at the
// next rotation at the latest; in that case the freshly rotated session is
// revoked again before failing. Token-level failures collapse into
// ErrInvalidRefreshToken; the session manager has already run any reuse
// cascade and written its audit entries by the time the error reaches here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceInfo, ipAddress string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	newToken, userID, err := s.sessions.Rotate(ctx, refreshToken, deviceInfo, ipAddress)
	if err != nil {
		if errors.Is(err, sessionservice.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		// Fail closed: the rotation already succeeded, so take the new
		// session back before rejecting.
		if rerr := s.sessions.Revoke(ctx, newToken); rerr != nil {
			return nil, rerr
		}
		return nil, ErrUserNotFoundOrInactive
	}
	accessToken, err := s.signer.Issue(user.ID, user.Email, user.Role, s.accessTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		AccessToken:  accessToken,
		RefreshToken: newToken,
		ExpiresAt:    time.Now().UTC().Add(s.accessTTL),
	}, nil
}

// Logout revokes the session behind the refresh token. Idempotent: unknown or
// already-revoked tokens succeed silently.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, refreshToken)
}

// LogoutAll revokes every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// ActiveSessions lists the user's active sessions, newest first.
func (s *AuthService) ActiveSessions(ctx context.Context, userID string) ([]sessiondomain.Summary, error) {
	return s.sessions.ListActive(ctx, userID)
}

// RevokeSession revokes one of the user's sessions by id. Returns whether it
// existed; other users' sessions look missing.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.sessions.RevokeByID(ctx, userID, sessionID)
}

// Profile returns the user behind an authenticated request.
func (s *AuthService) Profile(ctx context.Context, userID string) (*userdomain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SecurityActivity returns the user's recent audit entries, newest first, so
// account holders can review logins, rotations, and revocations. limit outside
// 1..100 falls back to 50. Returns nothing when no audit trail is configured.
func (s *AuthService) SecurityActivity(ctx context.Context, userID string, limit int32) ([]*auditdomain.AuditLog, error) {
	if s.activity == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.activity.ListByUser(ctx, userID, limit, 0)
}

func (s *AuthService) logAuthEvent(ctx context.Context, userID, action, metadata string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, userID, action, "auth", metadata)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

// validatePassword enforces the password policy, reporting the first rule that
// fails: minimum length, one uppercase, one lowercase, one digit, one symbol,
// and not on the common-password denylist.
func (s *AuthService) validatePassword(password string) error {
	if len(password) < s.minPassword {
		return fmt.Errorf("password must be at least %d characters", s.minPassword)
	}
	lower := strings.ToLower(password)
	for _, common := range commonPasswords {
		if lower == common {
			return errors.New("password is too common")
		}
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return errors.New("password must contain at least one digit")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
