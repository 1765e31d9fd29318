package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/adapter/cache"
	"github.com/apercky/documinds-sub000/internal/credentials"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/http/handler"
	"github.com/apercky/documinds-sub000/internal/http/middleware"
	"github.com/apercky/documinds-sub000/internal/oidc"
	"github.com/apercky/documinds-sub000/internal/refresh"
	"github.com/apercky/documinds-sub000/internal/session"
)

const testClientID = "documinds-web"

func init() {
	gin.SetMode(gin.TestMode)
}

func signAccessToken(t *testing.T, subject, brand string, roles []string) string {
	t.Helper()
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte("provider-signing-key-32-bytes!!!")},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	std := gojwt.Claims{
		Subject: subject,
		Issuer:  "https://idp.example.com/realms/documinds",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	custom := map[string]any{
		"brand": brand,
		"realm_access": map[string]any{
			"roles": roles,
		},
	}
	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return token
}

type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]cache.LoginState
}

var _ cache.StateStore = (*memoryStateStore)(nil)

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[string]cache.LoginState)}
}

func (m *memoryStateStore) Save(ctx context.Context, nonce string, state cache.LoginState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[nonce] = state
	return nil
}

func (m *memoryStateStore) Consume(ctx context.Context, nonce string) (*cache.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[nonce]
	if !ok {
		return nil, nil
	}
	delete(m.states, nonce)
	return &state, nil
}

type memoryCredStore struct {
	mu   sync.Mutex
	sets map[string]domain.TokenSet
}

var _ credentials.Store = (*memoryCredStore)(nil)

func newMemoryCredStore() *memoryCredStore {
	return &memoryCredStore{sets: make(map[string]domain.TokenSet)}
}

func (m *memoryCredStore) Put(ctx context.Context, set domain.TokenSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Subject] = set
	return nil
}

func (m *memoryCredStore) Get(ctx context.Context, subject string) (*domain.TokenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[subject]
	if !ok {
		return nil, nil
	}
	return &set, nil
}

func (m *memoryCredStore) Delete(ctx context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, subject)
	return nil
}

type stubOIDC struct {
	mu            sync.Mutex
	exchangeResp  *oidc.TokenResponse
	exchangeErr   error
	refreshResp   *oidc.TokenResponse
	refreshErr    error
	refreshCalls  int
	lastCode      string
	lastRedirect  string
	endSessionURL string
}

var _ handler.OIDCClient = (*stubOIDC)(nil)

func (s *stubOIDC) ExchangeCode(ctx context.Context, code, redirectURI string) (*oidc.TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	s.lastRedirect = redirectURI
	return s.exchangeResp, s.exchangeErr
}

func (s *stubOIDC) Refresh(ctx context.Context, refreshToken string) (*oidc.TokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	return s.refreshResp, s.refreshErr
}

func (s *stubOIDC) FetchUserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	return &oidc.UserInfo{Subject: "user-1"}, nil
}

func (s *stubOIDC) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{}
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return "https://idp.example.com/authorize?" + q.Encode()
}

func (s *stubOIDC) EndSessionURL(idToken, postLogoutRedirectURI string) string {
	return s.endSessionURL
}

type authFixture struct {
	oidc     *stubOIDC
	states   *memoryStateStore
	creds    *memoryCredStore
	sessions *session.Manager
	manager  *refresh.Manager
	router   *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	sessions, err := session.NewManager("session-secret", time.Hour)
	require.NoError(t, err)

	stub := &stubOIDC{}
	creds := newMemoryCredStore()
	states := newMemoryStateStore()

	manager := refresh.NewManager(refresh.DefaultConfig(), stub, creds, testClientID, zap.NewNop())
	t.Cleanup(manager.Close)

	h := &handler.AuthHandler{
		OIDC:          stub,
		States:        states,
		Sessions:      sessions,
		Credentials:   creds,
		Refresher:     manager,
		ClientID:      testClientID,
		RedirectURL:   "http://localhost:8080/auth/callback",
		PostLogoutURL: "http://localhost:8080/",
		Logger:        zap.NewNop(),
	}

	authMW := &middleware.Auth{Sessions: sessions, Credentials: creds, Logger: zap.NewNop()}

	router := gin.New()
	router.GET("/auth/login", h.Login)
	router.GET("/auth/callback", h.Callback)
	router.GET("/auth/logout", h.Logout)
	router.GET("/api/me", authMW.Require(), h.Me)
	router.POST("/api/session/refresh", authMW.Require(), h.SessionRefresh)
	router.POST("/api/session/visibility", authMW.Require(), h.SessionVisibility)

	return &authFixture{
		oidc:     stub,
		states:   states,
		creds:    creds,
		sessions: sessions,
		manager:  manager,
		router:   router,
	}
}

func (f *authFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	res := &http.Response{Header: w.Header()}
	for _, c := range res.Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestLoginRedirectsWithPersistedState(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?return_to=/documents&brand=2_20", nil))
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.example.com", location.Host)

	nonce := location.Query().Get("state")
	require.NotEmpty(t, nonce)

	state, err := f.states.Consume(context.Background(), nonce)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, "/documents", state.ReturnTo)
	require.Equal(t, "2_20", state.Brand)
}

func TestLoginDropsOffsiteReturnTo(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?return_to=https://evil.example.com/", nil))
	require.Equal(t, http.StatusFound, w.Code)

	location, _ := url.Parse(w.Header().Get("Location"))
	nonce := location.Query().Get("state")
	state, err := f.states.Consume(context.Background(), nonce)
	require.NoError(t, err)
	require.Empty(t, state.ReturnTo)
}

func TestCallbackStoresCredentialsAndIssuesSession(t *testing.T) {
	f := newAuthFixture(t)
	accessToken := signAccessToken(t, "user-1", "2_20", []string{"admin", "user"})
	f.oidc.exchangeResp = &oidc.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		IDToken:      "id-1",
		ExpiresIn:    300,
	}
	require.NoError(t, f.states.Save(context.Background(), "nonce-1", cache.LoginState{ReturnTo: "/documents"}, 0))

	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state=nonce-1", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/documents", w.Header().Get("Location"))

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	subject, brand, err := f.sessions.Verify(cookie.Value)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
	require.Equal(t, "2_20", brand)

	set, err := f.creds.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, set)
	require.Equal(t, accessToken, set.AccessToken)
	require.Equal(t, "refresh-1", set.RefreshToken)
	require.Equal(t, []string{"admin", "user"}, set.Roles)
	require.Equal(t, "2_20", set.Brand)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state=forged", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_state")
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	accessToken := signAccessToken(t, "user-1", "", nil)
	f.oidc.exchangeResp = &oidc.TokenResponse{AccessToken: accessToken, ExpiresIn: 300}
	require.NoError(t, f.states.Save(context.Background(), "nonce-1", cache.LoginState{}, 0))

	w := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state=nonce-1", nil))
	require.Equal(t, http.StatusFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=code-1&state=nonce-1", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func loginSession(t *testing.T, f *authFixture, subject string, roles []string) *http.Cookie {
	t.Helper()
	require.NoError(t, f.creds.Put(context.Background(), domain.TokenSet{
		Subject:      subject,
		AccessToken:  "access-" + subject,
		RefreshToken: "refresh-" + subject,
		IDToken:      "id-" + subject,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		Brand:        "2_20",
		Roles:        roles,
	}))
	token, err := f.sessions.Issue(subject, "2_20")
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func TestMeReturnsIdentityAndAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", []string{"user"})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `"subject":"user-1"`)
	require.Contains(t, body, `"access_token":"access-user-1"`)
	require.Contains(t, body, `"brand":"2_20"`)
}

func TestLogoutDeletesCredentialsAndClearsCookie(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(cookie)
	w := f.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "http://localhost:8080/", w.Header().Get("Location"))

	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	set, err := f.creds.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Nil(t, set)
}

func TestLogoutRedirectsToProviderEndSession(t *testing.T) {
	f := newAuthFixture(t)
	f.oidc.endSessionURL = "https://idp.example.com/logout?id_token_hint=id-user-1"
	cookie := loginSession(t, f, "user-1", nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(cookie)
	w := f.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, f.oidc.endSessionURL, w.Header().Get("Location"))
}

func TestSessionRefreshReplacesAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", nil)
	f.oidc.refreshResp = &oidc.TokenResponse{
		AccessToken:  signAccessToken(t, "user-1", "2_20", []string{"user"}),
		RefreshToken: "refresh-next",
		ExpiresIn:    600,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
	req.AddCookie(cookie)
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"refreshed"`)

	set, err := f.creds.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "refresh-next", set.RefreshToken)
}

func TestSessionRefreshRejectedYieldsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", nil)
	f.oidc.refreshErr = oidc.ErrRefreshRejected

	req := httptest.NewRequest(http.MethodPost, "/api/session/refresh", nil)
	req.AddCookie(cookie)
	w := f.do(req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionVisibilityShortAbsenceSkipsRefresh(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/visibility", strings.NewReader(`{"away_seconds":5}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Zero(t, f.oidc.refreshCalls)
}

func TestSessionVisibilityLongAbsenceRefreshes(t *testing.T) {
	f := newAuthFixture(t)
	cookie := loginSession(t, f, "user-1", nil)
	f.oidc.refreshResp = &oidc.TokenResponse{
		AccessToken: signAccessToken(t, "user-1", "2_20", nil),
		ExpiresIn:   600,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/session/visibility", strings.NewReader(`{"away_seconds":7200}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w := f.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, f.oidc.refreshCalls)
}
