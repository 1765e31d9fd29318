// Package credentials persists one TokenSet per subject in Redis, shared by
// every server instance. The store is the single source of truth for token
// state; callers hold copies only for the duration of one operation.
package credentials

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apercky/documinds-sub000/internal/domain"
)

// GracePeriod extends the record TTL past token expiry so one missed
// proactive refresh cycle can still find the refresh token.
const GracePeriod = 5 * time.Minute

const keyPrefix = "documinds:credentials:"

// Store is the credential persistence contract consumed by the interceptor
// and the refresh manager.
type Store interface {
	Put(ctx context.Context, set domain.TokenSet) error
	Get(ctx context.Context, subject string) (*domain.TokenSet, error)
	Delete(ctx context.Context, subject string) error
}

// RedisStore implements Store on a Redis hash per subject.
type RedisStore struct {
	client redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed credential store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Put overwrites the full record and re-arms its TTL in one pipeline, so a
// reader never observes a partially replaced token set.
func (s *RedisStore) Put(ctx context.Context, set domain.TokenSet) error {
	if strings.TrimSpace(set.Subject) == "" {
		return fmt.Errorf("put credentials: empty subject")
	}

	key := storageKey(set.Subject)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encodeFields(set))
	pipe.Expire(ctx, key, RecordTTL(set, time.Now()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}

// Get returns the stored token set, or (nil, nil) when the subject has none.
// Absence means "not authenticated", not an error.
func (s *RedisStore) Get(ctx context.Context, subject string) (*domain.TokenSet, error) {
	fields, err := s.client.HGetAll(ctx, storageKey(subject)).Result()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	set := decodeFields(subject, fields)
	return &set, nil
}

// Delete removes the record. Deleting an absent subject is not an error.
func (s *RedisStore) Delete(ctx context.Context, subject string) error {
	if err := s.client.Del(ctx, storageKey(subject)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func storageKey(subject string) string {
	return keyPrefix + subject
}

// RecordTTL computes the store-enforced expiry for a token set: remaining
// token lifetime plus the fixed grace window. Already-expired sets still get
// the grace window so an emergency refresh can run.
func RecordTTL(set domain.TokenSet, now time.Time) time.Duration {
	remaining := time.Unix(set.ExpiresAt, 0).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining + GracePeriod
}

func encodeFields(set domain.TokenSet) map[string]any {
	return map[string]any{
		"access_token":  set.AccessToken,
		"refresh_token": set.RefreshToken,
		"id_token":      set.IDToken,
		"expires_at":    strconv.FormatInt(set.ExpiresAt, 10),
		"brand":         set.Brand,
		"roles":         strings.Join(set.Roles, ","),
	}
}

func decodeFields(subject string, fields map[string]string) domain.TokenSet {
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	var roles []string
	if raw := fields["roles"]; raw != "" {
		roles = strings.Split(raw, ",")
	}
	return domain.TokenSet{
		Subject:      subject,
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		IDToken:      fields["id_token"],
		ExpiresAt:    expiresAt,
		Brand:        fields["brand"],
		Roles:        roles,
	}
}
