package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenSigner_IssueAndVerify(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}

	token, err := s.Issue("u1", "shopper@example.com", "customer", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned empty token")
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "u1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "u1")
	}
	if claims.Email != "shopper@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "shopper@example.com")
	}
	if claims.Role != "customer" {
		t.Errorf("Role = %q, want %q", claims.Role, "customer")
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		t.Error("expiry should be in the future")
	}
}

func TestTokenSigner_VerifyGarbage(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	if _, err := s.Verify("not-a-token"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("want ErrInvalidSignature, got %v", err)
	}
}

func TestTokenSigner_VerifyExpired(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	token, err := s.Issue("u1", "shopper@example.com", "customer", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrExpired) {
		t.Errorf("want ErrExpired, got %v", err)
	}
}

func TestTokenSigner_VerifyWrongAlgorithm(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	// HS256 token signed with an arbitrary shared secret must be rejected even
	// though its claims parse, to rule out algorithm confusion.
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "shopper@example.com",
	}
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign HS256: %v", err)
	}
	if _, err := s.Verify(hs); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("want ErrInvalidSignature, got %v", err)
	}
}

func TestTokenSigner_VerifyMissingClaims(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	token, err := s.Issue("u1", "", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrMalformedClaims) {
		t.Errorf("want ErrMalformedClaims, got %v", err)
	}
}

func TestTokenSigner_VerifyWrongIssuer(t *testing.T) {
	s, err := NewTestTokenSigner()
	if err != nil {
		t.Fatalf("NewTestTokenSigner: %v", err)
	}
	priv, _ := ParsePrivateKey(testPrivateKeyPEM)
	pub, _ := ParsePublicKey(testPublicKeyPEM)
	other := NewTokenSigner(priv, pub, "other-issuer", "test-audience")
	token, err := other.Issue("u1", "shopper@example.com", "customer", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("want ErrInvalidSignature, got %v", err)
	}
}
