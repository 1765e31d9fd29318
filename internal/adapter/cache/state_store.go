// Package cache holds Redis-backed short-lived stores that do not belong to
// the credential store proper.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginState binds an authorization redirect to the request that started it.
// It lives only for the duration of the round trip to the identity provider.
type LoginState struct {
	ReturnTo  string `json:"return_to,omitempty"`
	Brand     string `json:"brand,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// DefaultStateTTL bounds how long a pending login may take.
const DefaultStateTTL = 10 * time.Minute

const stateKeyPrefix = "documinds:login-state:"

// StateStore persists pending login states.
type StateStore interface {
	Save(ctx context.Context, nonce string, state LoginState, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (*LoginState, error)
}

// RedisStateStore implements StateStore backed by Redis.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed login state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save stores the encoded login state under the nonce with TTL.
func (s *RedisStateStore) Save(ctx context.Context, nonce string, state LoginState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal login state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+nonce, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist login state: %w", err)
	}
	return nil
}

// Consume loads the state and deletes it so a nonce can be redeemed once.
// A missing or expired nonce yields (nil, nil).
func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (*LoginState, error) {
	key := stateKeyPrefix + nonce
	bytes, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load login state: %w", err)
	}
	var state LoginState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode login state: %w", err)
	}
	return &state, nil
}
