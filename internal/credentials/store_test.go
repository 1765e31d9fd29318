package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apercky/documinds-sub000/internal/domain"
)

func TestFieldMapRoundTrip(t *testing.T) {
	set := domain.TokenSet{
		Subject:      "user-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		IDToken:      "identity",
		ExpiresAt:    1756400000,
		Brand:        "2_20",
		Roles:        []string{"admin", "user"},
	}

	fields := encodeFields(set)
	asStrings := make(map[string]string, len(fields))
	for k, v := range fields {
		asStrings[k] = v.(string)
	}

	got := decodeFields("user-1", asStrings)
	require.Equal(t, set, got)
}

func TestDecodeFieldsWithoutRoles(t *testing.T) {
	got := decodeFields("user-1", map[string]string{
		"access_token": "access",
		"expires_at":   "123",
	})
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, int64(123), got.ExpiresAt)
	require.Nil(t, got.Roles)
}

func TestRecordTTL(t *testing.T) {
	now := time.Now()

	live := domain.TokenSet{ExpiresAt: now.Add(10 * time.Minute).Unix()}
	ttl := RecordTTL(live, now)
	require.InDelta(t, (10*time.Minute + GracePeriod).Seconds(), ttl.Seconds(), 1)

	expired := domain.TokenSet{ExpiresAt: now.Add(-time.Hour).Unix()}
	require.Equal(t, GracePeriod, RecordTTL(expired, now))
}
