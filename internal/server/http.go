// Package server is the HTTP transport: a chi router over the auth service,
// with token delivery via HttpOnly cookies.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	auditdomain "localmart/backend/internal/audit/domain"
	"localmart/backend/internal/health"
	identityservice "localmart/backend/internal/identity/service"
	sessiondomain "localmart/backend/internal/session/domain"
	sessionservice "localmart/backend/internal/session/service"
	userdomain "localmart/backend/internal/user/domain"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"

	requestTimeout = 10 * time.Second
)

// AuthAPI is the slice of the auth service the transport needs.
type AuthAPI interface {
	Register(ctx context.Context, email, password, name, deviceInfo, ipAddress string) (*identityservice.AuthResult, error)
	Login(ctx context.Context, email, password, deviceInfo, ipAddress string) (*identityservice.AuthResult, error)
	Refresh(ctx context.Context, refreshToken, deviceInfo, ipAddress string) (*identityservice.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	ActiveSessions(ctx context.Context, userID string) ([]sessiondomain.Summary, error)
	RevokeSession(ctx context.Context, userID, sessionID string) (bool, error)
	Profile(ctx context.Context, userID string) (*userdomain.User, error)
	SecurityActivity(ctx context.Context, userID string, limit int32) ([]*auditdomain.AuditLog, error)
}

// Server serves the auth API over HTTP.
type Server struct {
	http         *http.Server
	router       chi.Router
	auth         AuthAPI
	accessTTL    time.Duration
	refreshTTL   time.Duration
	cookieSecure bool
}

// New builds the router and returns a Server listening on addr once Start is called.
func New(addr string, auth AuthAPI, verifier TokenVerifier, accessTTL, refreshTTL time.Duration, cookieSecure bool) *Server {
	s := &Server{
		auth:         auth,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		cookieSecure: cookieSecure,
	}

	r := chi.NewRouter()
	r.Use(ClientIPMiddleware)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(verifier))
			r.Post("/logout-all", s.handleLogoutAll)
			r.Get("/me", s.handleMe)
			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions/{id}", s.handleRevokeSession)
			r.Get("/activity", s.handleActivity)
		})
	})

	s.router = r
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// MountHealth registers the liveness and readiness probes.
func (s *Server) MountHealth(h *health.Handler) {
	s.router.Get("/healthz", h.Live)
	s.router.Get("/readyz", h.Ready)
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("http: listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	res, err := s.auth.Register(ctx, req.Email, req.Password, req.Name, r.UserAgent(), ClientIPFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, identityservice.ErrUserAlreadyExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, sessionservice.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	// Registration signs the user straight in, so the response carries the
	// same token payload and cookies as a login.
	s.setAuthCookies(w, res)
	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		User:        userResponse{ID: res.UserID, Email: res.Email, Name: res.Name, Role: res.Role},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	res, err := s.auth.Login(ctx, req.Email, req.Password, r.UserAgent(), ClientIPFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, identityservice.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, identityservice.ErrAccountInactive):
			writeError(w, http.StatusForbidden, "account is deactivated")
		case errors.Is(err, sessionservice.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		default:
			log.Printf("http: login failed: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	s.setAuthCookies(w, res)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		User:        userResponse{ID: res.UserID, Email: res.Email, Name: res.Name, Role: res.Role},
	})
}

// handleRefresh accepts the refresh token from the cookie or, failing that,
// the request body. Every token-level failure gets the same 401 body; which
// rule rejected the token is for the audit trail, not the client.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	token := s.refreshTokenFrom(r)
	res, err := s.auth.Refresh(ctx, token, r.UserAgent(), ClientIPFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, sessionservice.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		s.clearAuthCookies(w)
		writeError(w, http.StatusUnauthorized, "please log in again")
		return
	}
	s.setAuthCookies(w, res)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		User:        userResponse{ID: res.UserID, Email: res.Email, Name: res.Name, Role: res.Role},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.auth.Logout(ctx, s.refreshTokenFrom(r)); err != nil {
		if errors.Is(err, sessionservice.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		log.Printf("http: logout failed: %v", err)
	}
	s.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, _ := UserIDFromContext(r.Context())
	if err := s.auth.LogoutAll(ctx, userID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	s.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, _ := UserIDFromContext(r.Context())
	user, err := s.auth.Profile(ctx, userID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "please log in again")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, _ := UserIDFromContext(r.Context())
	list, err := s.auth.ActiveSessions(ctx, userID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if list == nil {
		list = []sessiondomain.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, _ := UserIDFromContext(r.Context())
	found, err := s.auth.RevokeSession(ctx, userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activityEntry struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, _ := UserIDFromContext(r.Context())
	list, err := s.auth.SecurityActivity(ctx, userID, 50)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	out := make([]activityEntry, len(list))
	for i, e := range list {
		out[i] = activityEntry{Action: e.Action, Resource: e.Resource, IP: e.IP, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (s *Server) setAuthCookies(w http.ResponseWriter, res *identityservice.AuthResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    res.AccessToken,
		Path:     "/",
		MaxAge:   int(s.accessTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    res.RefreshToken,
		Path:     "/auth",
		MaxAge:   int(s.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: accessCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: "", Path: "/auth", MaxAge: -1, HttpOnly: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
