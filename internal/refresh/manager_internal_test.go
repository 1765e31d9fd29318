package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/oidc"
)

type gatedProvider struct {
	release chan struct{}
}

func (g *gatedProvider) Refresh(ctx context.Context, refreshToken string) (*oidc.TokenResponse, error) {
	<-g.release
	return &oidc.TokenResponse{AccessToken: "new-access", ExpiresIn: 300}, nil
}

func (g *gatedProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*oidc.TokenResponse, error) {
	return nil, nil
}

func (g *gatedProvider) FetchUserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	return nil, nil
}

type mapStore struct {
	mu   sync.Mutex
	sets map[string]domain.TokenSet
}

func (s *mapStore) Put(ctx context.Context, set domain.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.Subject] = set
	return nil
}

func (s *mapStore) Get(ctx context.Context, subject string) (*domain.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[subject]
	if !ok {
		return nil, nil
	}
	return &set, nil
}

func (s *mapStore) Delete(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, subject)
	return nil
}

func (m *Manager) subjectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subjects)
}

func TestUntrackDuringInFlightDropsEntryOnCompletion(t *testing.T) {
	store := &mapStore{sets: map[string]domain.TokenSet{
		"user-1": {
			Subject:      "user-1",
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    time.Now().Add(time.Minute).Unix(),
		},
	}}
	provider := &gatedProvider{release: make(chan struct{})}
	m := NewManager(DefaultConfig(), provider, store, "documinds", zap.NewNop())
	defer m.Close()

	m.Track("user-1")

	done := make(chan error, 1)
	go func() {
		done <- m.Refresh(context.Background(), "user-1")
	}()

	deadline := time.Now().Add(time.Second)
	for m.StateOf("user-1") != StateInFlight && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, StateInFlight, m.StateOf("user-1"))

	// Logout while the refresh is still running.
	m.Untrack("user-1")

	close(provider.release)
	require.NoError(t, <-done)

	require.Equal(t, StateIdle, m.StateOf("user-1"))
	require.Zero(t, m.subjectCount())
}
