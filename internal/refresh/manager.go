// Package refresh keeps access tokens valid without redundant identity
// provider calls. A Manager owns one small state machine per subject and
// guarantees at most one refresh in flight per subject within this process.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/credentials"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/oidc"
)

// State is the per-subject refresh lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInFlight
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateBackoff:
		return "backoff_wait"
	default:
		return "idle"
	}
}

var (
	// ErrRefreshInFlight signals a refresh is already running for the
	// subject; the caller must not duplicate the work.
	ErrRefreshInFlight = errors.New("refresh: already in progress")
	// ErrNoCredentials signals the subject has no stored token set.
	ErrNoCredentials = errors.New("refresh: no stored credentials")
)

// Config carries the refresh timing constants.
type Config struct {
	// Interval is the base period of the proactive sweep; each tick is
	// offset by a random value in ±Jitter, so a fleet of clients does not
	// hit the identity provider in the same instant.
	Interval time.Duration
	Jitter   time.Duration
	// RefreshAhead marks a token as stale while this much lifetime remains.
	RefreshAhead time.Duration

	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int

	// Absence thresholds classify visibility-return urgency. Only AwayShort
	// gates behavior; the others escalate the log classification.
	AwayShort  time.Duration
	AwayMedium time.Duration
	AwayLong   time.Duration
}

// DefaultConfig mirrors the deployment defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     4 * time.Minute,
		Jitter:       30 * time.Second,
		RefreshAhead: 2 * time.Minute,
		BaseDelay:    2 * time.Second,
		MaxDelay:     time.Minute,
		MaxRetries:   3,
		AwayShort:    time.Minute,
		AwayMedium:   15 * time.Minute,
		AwayLong:     time.Hour,
	}
}

type subjectState struct {
	state    State
	failures int
	timer    *time.Timer
	tracked  bool
}

// Manager arbitrates token refreshes for all subjects of this process.
type Manager struct {
	cfg      Config
	provider oidc.Client
	store    credentials.Store
	clientID string
	logger   *zap.Logger

	mu       sync.Mutex
	subjects map[string]*subjectState
	closed   bool

	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wires the refresh orchestrator. Call Close on teardown so no
// timer outlives the session.
func NewManager(cfg Config, provider oidc.Client, store credentials.Store, clientID string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		provider: provider,
		store:    store,
		clientID: clientID,
		logger:   logger,
		subjects: make(map[string]*subjectState),
		runCtx:   ctx,
		cancel:   cancel,
	}
}

// Track registers a subject for the proactive sweep.
func (m *Manager) Track(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stateLocked(subject).tracked = true
}

// Untrack removes a subject from the proactive sweep and cancels any
// pending backoff retry.
func (m *Manager) Untrack(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[subject]
	if !ok {
		return
	}
	s.tracked = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateBackoff {
		s.state = StateIdle
		s.failures = 0
	}
	if s.state == StateIdle {
		delete(m.subjects, subject)
	}
}

// StateOf reports the subject's current lifecycle state.
func (m *Manager) StateOf(subject string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subjects[subject]; ok {
		return s.state
	}
	return StateIdle
}

// Refresh requests an immediate refresh for subject. Exactly one refresh
// runs per subject; a concurrent request observes ErrRefreshInFlight and
// performs no network call.
func (m *Manager) Refresh(ctx context.Context, subject string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("refresh: manager closed")
	}
	s := m.stateLocked(subject)
	if s.state != StateIdle {
		m.mu.Unlock()
		return ErrRefreshInFlight
	}
	s.state = StateInFlight
	m.mu.Unlock()

	return m.attempt(ctx, subject)
}

// attempt performs one refresh try and drives the failure transitions.
func (m *Manager) attempt(ctx context.Context, subject string) error {
	err := m.refreshOnce(ctx, subject)
	if err == nil {
		m.mu.Lock()
		s := m.stateLocked(subject)
		s.state = StateIdle
		s.failures = 0
		m.dropIfIdleLocked(subject)
		m.mu.Unlock()
		return nil
	}

	if errors.Is(err, oidc.ErrRefreshRejected) || errors.Is(err, ErrNoCredentials) {
		// Not recoverable by retrying; let the session expire naturally.
		m.logger.Warn("token refresh rejected",
			zap.String("subject", subject),
			zap.Error(err),
		)
		m.resetToIdle(subject)
		return err
	}

	m.mu.Lock()
	s := m.stateLocked(subject)
	s.failures++
	if s.failures > m.cfg.MaxRetries {
		failures := s.failures
		s.state = StateIdle
		s.failures = 0
		m.dropIfIdleLocked(subject)
		m.mu.Unlock()
		m.logger.Error("token refresh failed terminally",
			zap.String("subject", subject),
			zap.Int("attempts", failures),
			zap.Error(err),
		)
		return err
	}

	attempt := s.failures
	delay := BackoffDelay(m.cfg, attempt)
	s.state = StateBackoff
	s.timer = time.AfterFunc(delay, func() {
		m.retryFromBackoff(subject)
	})
	m.mu.Unlock()

	m.logger.Warn("token refresh failed, backing off",
		zap.String("subject", subject),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	return err
}

func (m *Manager) retryFromBackoff(subject string) {
	m.mu.Lock()
	s, ok := m.subjects[subject]
	if !ok || m.closed || s.state != StateBackoff {
		m.mu.Unlock()
		return
	}
	s.state = StateInFlight
	s.timer = nil
	m.mu.Unlock()

	_ = m.attempt(m.runCtx, subject)
}

// refreshOnce calls the provider and atomically replaces the stored record.
func (m *Manager) refreshOnce(ctx context.Context, subject string) error {
	stored, err := m.store.Get(ctx, subject)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if stored == nil || stored.RefreshToken == "" {
		return ErrNoCredentials
	}

	resp, err := m.provider.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		return err
	}

	next := domain.TokenSet{
		Subject:      subject,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
		Brand:        stored.Brand,
		Roles:        stored.Roles,
	}
	// Providers may omit rotation; the prior refresh token stays valid then.
	if next.RefreshToken == "" {
		next.RefreshToken = stored.RefreshToken
	}
	if next.IDToken == "" {
		next.IDToken = stored.IDToken
	}
	if perms, err := oidc.ExtractPermissions(resp.AccessToken, m.clientID); err == nil {
		if len(perms.Roles) > 0 {
			next.Roles = perms.Roles
		}
		if perms.Brand != "" {
			next.Brand = perms.Brand
		}
	}

	if err := m.store.Put(ctx, next); err != nil {
		return fmt.Errorf("persist refreshed credentials: %w", err)
	}

	m.logger.Debug("token refreshed",
		zap.String("subject", subject),
		zap.Int64("expires_at", next.ExpiresAt),
	)
	return nil
}

// NotifyVisible handles a visibility-return signal. The away duration only
// escalates the log classification; a refresh fires once the absence
// exceeds the short threshold.
func (m *Manager) NotifyVisible(ctx context.Context, subject string, away time.Duration) error {
	if away < m.cfg.AwayShort {
		return nil
	}

	classification := "short"
	switch {
	case away >= m.cfg.AwayLong:
		classification = "long"
	case away >= m.cfg.AwayMedium:
		classification = "medium"
	}
	m.logger.Info("visibility regained, refreshing session",
		zap.String("subject", subject),
		zap.String("absence", classification),
		zap.Duration("away", away),
	)

	err := m.Refresh(ctx, subject)
	if errors.Is(err, ErrRefreshInFlight) {
		return nil
	}
	return err
}

// Run drives the proactive sweep until ctx or the manager is closed. Each
// cycle refreshes tracked subjects whose tokens are within RefreshAhead of
// expiry.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	if m.done != nil || m.closed {
		m.mu.Unlock()
		return
	}
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	defer close(done)

	for {
		timer := time.NewTimer(m.nextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.runCtx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		m.sweep(ctx)
	}
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.Lock()
	tracked := make([]string, 0, len(m.subjects))
	for subject, s := range m.subjects {
		if s.tracked {
			tracked = append(tracked, subject)
		}
	}
	m.mu.Unlock()

	for _, subject := range tracked {
		set, err := m.store.Get(ctx, subject)
		if err != nil {
			m.logger.Warn("sweep load failed", zap.String("subject", subject), zap.Error(err))
			continue
		}
		if set == nil {
			m.Untrack(subject)
			continue
		}
		if set.ExpiresIn(time.Now()) > m.cfg.RefreshAhead {
			continue
		}
		if err := m.Refresh(ctx, subject); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			m.logger.Warn("proactive refresh failed", zap.String("subject", subject), zap.Error(err))
		}
	}
}

// Close cancels pending retries and stops the sweep. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, s := range m.subjects {
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
	}
	done := m.done
	m.mu.Unlock()

	m.cancel()
	if done != nil {
		<-done
	}
}

func (m *Manager) stateLocked(subject string) *subjectState {
	s, ok := m.subjects[subject]
	if !ok {
		s = &subjectState{}
		m.subjects[subject] = s
	}
	return s
}

func (m *Manager) resetToIdle(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateLocked(subject)
	s.state = StateIdle
	s.failures = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	m.dropIfIdleLocked(subject)
}

// dropIfIdleLocked removes a subject entry that nothing references anymore:
// untracked, idle, and without a pending retry. Keeps the map from growing
// with logged-out subjects whose Untrack raced an in-flight refresh.
func (m *Manager) dropIfIdleLocked(subject string) {
	s, ok := m.subjects[subject]
	if !ok {
		return
	}
	if !s.tracked && s.state == StateIdle && s.timer == nil {
		delete(m.subjects, subject)
	}
}

func (m *Manager) nextInterval() time.Duration {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	if m.cfg.Jitter <= 0 {
		return interval
	}
	offset := time.Duration(rand.Int63n(int64(2*m.cfg.Jitter))) - m.cfg.Jitter
	if interval+offset <= 0 {
		return interval
	}
	return interval + offset
}

// BackoffDelay returns the wait before retry number attempt (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay.
func BackoffDelay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.BaseDelay << (attempt - 1)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
