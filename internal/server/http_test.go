package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	auditdomain "localmart/backend/internal/audit/domain"
	identityservice "localmart/backend/internal/identity/service"
	"localmart/backend/internal/security"
	sessiondomain "localmart/backend/internal/session/domain"
	sessionservice "localmart/backend/internal/session/service"
	userdomain "localmart/backend/internal/user/domain"
)

// stubAuth scripts the auth service responses per test.
type stubAuth struct {
	registerRes *identityservice.AuthResult
	registerErr error
	loginRes    *identityservice.AuthResult
	loginErr    error
	refreshRes  *identityservice.AuthResult
	refreshErr  error
	logoutErr   error
	sessions    []sessiondomain.Summary
	sessionsErr error
	revokeFound bool
	profile     *userdomain.User
	activity    []*auditdomain.AuditLog

	gotRefreshToken string
	gotLogoutToken  string
	gotRevokeID     string
}

func (a *stubAuth) Register(_ context.Context, _, _, _, _, _ string) (*identityservice.AuthResult, error) {
	return a.registerRes, a.registerErr
}

func (a *stubAuth) Login(_ context.Context, _, _, _, _ string) (*identityservice.AuthResult, error) {
	return a.loginRes, a.loginErr
}

func (a *stubAuth) Refresh(_ context.Context, token, _, _ string) (*identityservice.AuthResult, error) {
	a.gotRefreshToken = token
	return a.refreshRes, a.refreshErr
}

func (a *stubAuth) Logout(_ context.Context, token string) error {
	a.gotLogoutToken = token
	return a.logoutErr
}

func (a *stubAuth) LogoutAll(_ context.Context, _ string) error { return nil }

func (a *stubAuth) ActiveSessions(_ context.Context, _ string) ([]sessiondomain.Summary, error) {
	return a.sessions, a.sessionsErr
}

func (a *stubAuth) RevokeSession(_ context.Context, _, sessionID string) (bool, error) {
	a.gotRevokeID = sessionID
	return a.revokeFound, nil
}

func (a *stubAuth) Profile(_ context.Context, _ string) (*userdomain.User, error) {
	return a.profile, nil
}

func (a *stubAuth) SecurityActivity(_ context.Context, _ string, _ int32) ([]*auditdomain.AuditLog, error) {
	return a.activity, nil
}

func newTestServer(t *testing.T, auth AuthAPI) (*Server, *security.TokenSigner) {
	t.Helper()
	signer, err := security.NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	return New(":0", auth, signer, 15*time.Minute, 168*time.Hour, false), signer
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func authResult() *identityservice.AuthResult {
	return &identityservice.AuthResult{
		UserID:       "user-1",
		Email:        "anna@example.com",
		Role:         "customer",
		AccessToken:  "access-abc",
		RefreshToken: "refresh-xyz",
		ExpiresAt:    time.Now().UTC().Add(15 * time.Minute),
	}
}

func TestRegisterEndpoint(t *testing.T) {
	auth := &stubAuth{registerRes: authResult()}
	srv, _ := newTestServer(t, auth)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/register",
		map[string]string{"email": "anna@example.com", "password": "Str0ng!pass"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.User.ID != "user-1" || got.User.Email != "anna@example.com" {
		t.Errorf("body = %+v", got)
	}
	if got.AccessToken != "access-abc" {
		t.Errorf("access token = %q, want the issued token in the body", got.AccessToken)
	}

	// Registration logs the user in, so the same cookies as a login are set.
	var access, refresh *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case accessCookieName:
			access = c
		case refreshCookieName:
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatal("register response missing auth cookies")
	}
	if refresh.Value != "refresh-xyz" || refresh.Path != "/auth" {
		t.Errorf("refresh cookie = %q path %q", refresh.Value, refresh.Path)
	}
	if strings.Contains(rec.Body.String(), "refresh-xyz") {
		t.Error("refresh token must not appear in the response body")
	}
}

func TestRegisterEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"duplicate", identityservice.ErrUserAlreadyExists, http.StatusConflict},
		{"weak password", fmt.Errorf("%w: too short", identityservice.ErrWeakPassword), http.StatusBadRequest},
		{"store down", fmt.Errorf("%w: dial", sessionservice.ErrUnavailable), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubAuth{registerErr: tt.err})
			rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/register",
				map[string]string{"email": "a@b.co", "password": "x"}, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestLoginSetsCookies(t *testing.T) {
	srv, _ := newTestServer(t, &stubAuth{loginRes: authResult()})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/login",
		map[string]string{"email": "anna@example.com", "password": "Str0ng!pass"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cookies := rec.Result().Cookies()
	var access, refresh *http.Cookie
	for _, c := range cookies {
		switch c.Name {
		case accessCookieName:
			access = c
		case refreshCookieName:
			refresh = c
		}
	}
	if access == nil || refresh == nil {
		t.Fatalf("cookies = %v, want access and refresh", cookies)
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Error("auth cookies must be HttpOnly")
	}
	if refresh.Value != "refresh-xyz" {
		t.Errorf("refresh cookie = %q", refresh.Value)
	}
	if refresh.Path != "/auth" {
		t.Errorf("refresh cookie path = %q, want /auth", refresh.Path)
	}

	var body tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AccessToken != "access-abc" || body.User.ID != "user-1" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(rec.Body.String(), "refresh-xyz") {
		t.Error("refresh token must not appear in the response body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv, _ := newTestServer(t, &stubAuth{loginErr: identityservice.ErrInvalidCredentials})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/login",
		map[string]string{"email": "a@b.co", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRefreshFromCookie(t *testing.T) {
	auth := &stubAuth{refreshRes: authResult()}
	srv, _ := newTestServer(t, auth)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "cookie-token"})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if auth.gotRefreshToken != "cookie-token" {
		t.Errorf("token passed = %q, want cookie value", auth.gotRefreshToken)
	}
}

func TestRefreshFromBody(t *testing.T) {
	auth := &stubAuth{refreshRes: authResult()}
	srv, _ := newTestServer(t, auth)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": "body-token"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if auth.gotRefreshToken != "body-token" {
		t.Errorf("token passed = %q, want body value", auth.gotRefreshToken)
	}
}

func TestRefreshFailuresAreGeneric(t *testing.T) {
	// Reuse, expiry, and unknown token must be indistinguishable to the client.
	failures := []error{
		fmt.Errorf("%w: reuse", identityservice.ErrInvalidRefreshToken),
		identityservice.ErrUserNotFoundOrInactive,
	}
	var bodies []string
	for _, ferr := range failures {
		srv, _ := newTestServer(t, &stubAuth{refreshErr: ferr})
		rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/refresh",
			map[string]string{"refresh_token": "t"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d for %v, want 401", rec.Code, ferr)
		}
		bodies = append(bodies, rec.Body.String())

		// The stale cookies are cleared so the client stops retrying.
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge >= 0 {
				t.Errorf("cookie %s not cleared on auth failure", c.Name)
			}
		}
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Errorf("failure bodies differ: %q vs %q", bodies[0], b)
		}
	}
}

func TestRefreshUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, &stubAuth{refreshErr: fmt.Errorf("%w: dial", sessionservice.ErrUnavailable)})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": "t"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (retryable, not a login failure)", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	auth := &stubAuth{}
	srv, _ := newTestServer(t, auth)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "some-token"})
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if auth.gotLogoutToken != "some-token" {
		t.Errorf("logout token = %q", auth.gotLogoutToken)
	}
	// Logout with no token at all is still a success.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/auth/logout", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status without token = %d, want 204", rec.Code)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	srv, signer := newTestServer(t, &stubAuth{profile: &userdomain.User{ID: "user-1", Email: "anna@example.com", Role: "customer"}})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/auth/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	token, err := signer.Issue("user-1", "anna@example.com", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with bearer = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: accessCookieName, Value: token})
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status with cookie = %d, want 200", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer garbage")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with garbage token = %d, want 401", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	auth := &stubAuth{
		sessions: []sessiondomain.Summary{
			{ID: "s2", DeviceInfo: "phone"},
			{ID: "s1", DeviceInfo: "laptop"},
		},
		revokeFound: true,
	}
	srv, signer := newTestServer(t, auth)
	token, err := signer.Issue("user-1", "anna@example.com", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	withAuth := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/auth/sessions", nil, withAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list []sessiondomain.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" {
		t.Errorf("list = %+v", list)
	}

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/auth/sessions/s1", nil, withAuth)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if auth.gotRevokeID != "s1" {
		t.Errorf("revoked id = %q, want s1", auth.gotRevokeID)
	}

	auth.revokeFound = false
	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/auth/sessions/nope", nil, withAuth)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want 404", rec.Code)
	}
}

func TestActivityEndpoint(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	auth := &stubAuth{activity: []*auditdomain.AuditLog{
		{ID: "a1", UserID: "user-1", Action: "login_failed", Resource: "auth", IP: "203.0.113.9", CreatedAt: created},
	}}
	srv, signer := newTestServer(t, auth)
	token, err := signer.Issue("user-1", "anna@example.com", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/auth/activity", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/auth/activity", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var list []activityEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Action != "login_failed" || list[0].IP != "203.0.113.9" {
		t.Errorf("list = %+v", list)
	}
	if strings.Contains(rec.Body.String(), "\"id\"") || strings.Contains(rec.Body.String(), "user-1") {
		t.Error("internal ids must not appear in activity entries")
	}
}

func TestListSessionsEmpty(t *testing.T) {
	srv, signer := newTestServer(t, &stubAuth{})
	token, err := signer.Issue("user-1", "anna@example.com", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/auth/sessions", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}
