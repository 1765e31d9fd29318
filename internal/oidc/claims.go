package oidc

import (
	"fmt"
	"sort"
	"strings"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// StructuredPermissions is the fixed claim shape used past this package.
// Provider claim structures are arbitrary; this is the normalized form.
type StructuredPermissions struct {
	Subject string
	Brand   string
	Roles   []string
}

var acceptedAlgorithms = []gojose.SignatureAlgorithm{
	gojose.RS256, gojose.RS384, gojose.RS512,
	gojose.ES256, gojose.ES384, gojose.ES512,
	gojose.HS256,
}

// ExtractPermissions decodes the provider-issued access token payload and
// normalizes its role and brand claims. The token arrives over the TLS
// channel the provider just answered on, so signature verification is the
// provider's job; this only reads the claim payload.
func ExtractPermissions(accessToken, clientID string) (StructuredPermissions, error) {
	parsed, err := gojwt.ParseSigned(accessToken, acceptedAlgorithms)
	if err != nil {
		return StructuredPermissions{}, fmt.Errorf("parse access token: %w", err)
	}

	var std gojwt.Claims
	var raw map[string]any
	if err := parsed.UnsafeClaimsWithoutVerification(&std, &raw); err != nil {
		return StructuredPermissions{}, fmt.Errorf("decode claims: %w", err)
	}

	return StructuredPermissions{
		Subject: std.Subject,
		Brand:   stringValue(raw["brand"]),
		Roles:   normalizeRoles(raw, clientID),
	}, nil
}

// normalizeRoles flattens Keycloak-style realm_access and resource_access
// role claims into a deduplicated, sorted role list.
func normalizeRoles(raw map[string]any, clientID string) []string {
	seen := map[string]struct{}{}

	collect := func(container any) {
		access, ok := container.(map[string]any)
		if !ok {
			return
		}
		list, ok := access["roles"].([]any)
		if !ok {
			return
		}
		for _, entry := range list {
			role, ok := entry.(string)
			if !ok {
				continue
			}
			role = strings.TrimSpace(role)
			if role != "" {
				seen[role] = struct{}{}
			}
		}
	}

	collect(raw["realm_access"])
	if resources, ok := raw["resource_access"].(map[string]any); ok {
		collect(resources[clientID])
	}

	if len(seen) == 0 {
		return nil
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
