// Package session issues and verifies the signed session token that proves
// a caller's identity between requests. The cookie deliberately carries only
// subject and brand; access tokens live in the credential store and are
// fetched out-of-band via /api/me to keep the cookie small.
package session

import (
	"crypto/sha256"
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// CookieName is the session cookie issued on login.
const CookieName = "dm_session"

const issuer = "documinds"

// Claims is the session token payload beyond the registered claims.
type Claims struct {
	Brand string `json:"brand,omitempty"`
}

// Manager signs and validates session tokens with an HMAC key derived from
// the application session secret.
type Manager struct {
	key []byte
	ttl time.Duration
}

// NewManager derives the signing key and fixes the session lifetime.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session: secret is required")
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	key := sha256.Sum256([]byte(secret))
	return &Manager{key: key[:], ttl: ttl}, nil
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue produces a signed session token for subject.
func (m *Manager) Issue(subject, brand string) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: m.key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(m.ttl)),
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(Claims{Brand: brand}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize session token: %w", err)
	}
	return token, nil
}

// Verify checks signature and validity window and returns subject and brand.
func (m *Manager) Verify(token string) (subject, brand string, err error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return "", "", fmt.Errorf("parse session token: %w", err)
	}

	var std gojwt.Claims
	var custom Claims
	if err := parsed.Claims(m.key, &std, &custom); err != nil {
		return "", "", fmt.Errorf("verify session token: %w", err)
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: issuer, Time: time.Now()}, 0); err != nil {
		return "", "", fmt.Errorf("validate session claims: %w", err)
	}
	if std.Subject == "" {
		return "", "", fmt.Errorf("session token missing subject")
	}
	return std.Subject, custom.Brand, nil
}
