package domain

import "time"

// TokenSet bundles the OIDC tokens and derived claims for one authenticated
// subject. Exactly one live TokenSet exists per subject; a refresh replaces
// the whole record, never individual fields.
type TokenSet struct {
	Subject      string
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresAt    int64
	Brand        string
	Roles        []string
}

// Expired reports whether the access token expiry has passed at ref.
func (t *TokenSet) Expired(ref time.Time) bool {
	return t.ExpiresAt <= ref.Unix()
}

// ExpiresIn returns the remaining lifetime at ref, clamped at zero.
func (t *TokenSet) ExpiresIn(ref time.Time) time.Duration {
	remaining := time.Unix(t.ExpiresAt, 0).Sub(ref)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasAnyRole reports whether the token set carries at least one of the
// required roles. An empty requirement always matches.
func (t *TokenSet) HasAnyRole(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range t.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
