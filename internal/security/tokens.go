package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Typed verification failures. Handlers map all of them to a generic 401.
var (
	// ErrInvalidSignature is returned when the signature does not verify,
	// including tokens signed with a different key or algorithm.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned when the token's exp claim is in the past.
	ErrExpired = errors.New("token expired")
	// ErrMalformedClaims is returned when required claims (sub, email) are absent.
	ErrMalformedClaims = errors.New("malformed token claims")
)

// AccessClaims holds JWT claims for the access token. Never persisted; its
// lifetime is independent of (and shorter than) any refresh session's.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenSigner issues and verifies access tokens using RS256 or ES256
// (private/public key). Stateless; safe for concurrent use.
type TokenSigner struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
}

// NewTokenSigner returns a TokenSigner that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and checked on verification.
func NewTokenSigner(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *TokenSigner {
	return &TokenSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
	}
}

// Issue signs a short-lived access token for the given subject. ttl is the
// token lifetime from now. Fails only if the signing key is unusable, which is
// a configuration error rather than a runtime condition to retry.
func (s *TokenSigner) Issue(subjectID, email, role string, ttl time.Duration) (string, error) {
	var method jwt.SigningMethod
	switch s.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	now := time.Now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Role:  role,
	}
	return jwt.NewWithClaims(method, claims).SignedString(s.privateKey)
}

// Verify parses and validates an access token (signature, exp, iss, aud) and
// returns its claims. The accepted algorithm is pinned to the configured key
// type, so a token signed with any other method fails with ErrInvalidSignature.
func (s *TokenSigner) Verify(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch s.publicKey.(type) {
		case *rsa.PublicKey:
			if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
				return s.publicKey, nil
			}
		case *ecdsa.PublicKey:
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
				return s.publicKey, nil
			}
		}
		return nil, ErrInvalidSignature
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidSignature
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.Issuer != s.issuer {
		return nil, ErrInvalidSignature
	}
	audOk := false
	for _, a := range claims.Audience {
		if a == s.audience {
			audOk = true
			break
		}
	}
	if !audOk {
		return nil, ErrInvalidSignature
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrMalformedClaims
	}
	return claims, nil
}
