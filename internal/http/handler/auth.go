// Package handler hosts the HTTP endpoint implementations.
package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/adapter/cache"
	"github.com/apercky/documinds-sub000/internal/credentials"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/http/middleware"
	"github.com/apercky/documinds-sub000/internal/oidc"
	"github.com/apercky/documinds-sub000/internal/refresh"
	"github.com/apercky/documinds-sub000/internal/session"
)

// OIDCClient is the provider surface the auth endpoints need: the token
// calls plus the browser redirect URL builders.
type OIDCClient interface {
	oidc.Client
	AuthorizationURL(redirectURI, state string) string
	EndSessionURL(idToken, postLogoutRedirectURI string) string
}

// AuthHandler drives the login round trip against the identity provider and
// the session endpoints behind it.
type AuthHandler struct {
	OIDC          OIDCClient
	States        cache.StateStore
	Sessions      *session.Manager
	Credentials   credentials.Store
	Refresher     *refresh.Manager
	ClientID      string
	RedirectURL   string
	PostLogoutURL string
	SecureCookies bool
	Logger        *zap.Logger
}

func (h *AuthHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}

// Login starts the authorization code flow. The state nonce binds the
// provider redirect back to this request's return_to and brand hint.
func (h *AuthHandler) Login(c *gin.Context) {
	nonce := uuid.NewString()
	state := cache.LoginState{
		ReturnTo:  sanitizeReturnTo(c.Query("return_to")),
		Brand:     strings.TrimSpace(c.Query("brand")),
		CreatedAt: time.Now().Unix(),
	}
	if err := h.States.Save(c.Request.Context(), nonce, state, cache.DefaultStateTTL); err != nil {
		h.logger().Error("persist login state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not start login."})
		return
	}
	c.Redirect(http.StatusFound, h.OIDC.AuthorizationURL(h.RedirectURL, nonce))
}

// Callback redeems the authorization code, stores the credential set, and
// issues the session cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	if provErr := c.Query("error"); provErr != "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": provErr, "error_description": c.Query("error_description")})
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	nonce := strings.TrimSpace(c.Query("state"))
	if code == "" || nonce == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and state are required."})
		return
	}

	state, err := h.States.Consume(c.Request.Context(), nonce)
	if err != nil {
		h.logger().Error("load login state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not verify login state."})
		return
	}
	if state == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Login state is unknown or expired."})
		return
	}

	tokens, err := h.OIDC.ExchangeCode(c.Request.Context(), code, h.RedirectURL)
	if err != nil {
		h.logger().Warn("authorization code exchange failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "exchange_failed", "error_description": "Identity provider rejected the code."})
		return
	}

	perms, err := oidc.ExtractPermissions(tokens.AccessToken, h.ClientID)
	if err != nil || perms.Subject == "" {
		h.logger().Warn("access token claims unreadable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid_token", "error_description": "Access token claims could not be read."})
		return
	}

	brandCode := perms.Brand
	if brandCode == "" {
		brandCode = state.Brand
	}

	set := domainTokenSet(perms.Subject, brandCode, perms.Roles, tokens)
	if err := h.Credentials.Put(c.Request.Context(), set); err != nil {
		h.logger().Error("store credentials", zap.String("subject", perms.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not persist credentials."})
		return
	}
	h.Refresher.Track(perms.Subject)

	sessionToken, err := h.Sessions.Issue(perms.Subject, brandCode)
	if err != nil {
		h.logger().Error("issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Could not issue session."})
		return
	}
	h.setSessionCookie(c, sessionToken, h.Sessions.TTL())

	target := state.ReturnTo
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

// Logout tears the session down on both sides: credentials and cookie here,
// then the provider end-session endpoint if one is configured.
func (h *AuthHandler) Logout(c *gin.Context) {
	subject, _, ok := h.sessionSubject(c)
	idToken := ""
	if ok {
		if set, err := h.Credentials.Get(c.Request.Context(), subject); err == nil && set != nil {
			idToken = set.IDToken
		}
		h.Refresher.Untrack(subject)
		if err := h.Credentials.Delete(c.Request.Context(), subject); err != nil {
			h.logger().Warn("delete credentials on logout", zap.String("subject", subject), zap.Error(err))
		}
	}
	h.setSessionCookie(c, "", -time.Hour)

	if target := h.OIDC.EndSessionURL(idToken, h.PostLogoutURL); target != "" {
		c.Redirect(http.StatusFound, target)
		return
	}
	c.Redirect(http.StatusFound, h.PostLogoutURL)
}

// Me returns the caller's identity and current access token. The frontend
// polls this instead of keeping tokens in browser storage.
func (h *AuthHandler) Me(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subject":      authCtx.Subject,
		"brand":        authCtx.Brand,
		"roles":        authCtx.Roles(),
		"access_token": authCtx.AccessToken,
	})
}

// SessionRefresh forces an immediate token refresh for the caller. A refresh
// already in flight is reported as accepted rather than an error.
func (h *AuthHandler) SessionRefresh(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	err := h.Refresher.Refresh(c.Request.Context(), authCtx.Subject)
	switch {
	case err == nil:
	case errors.Is(err, refresh.ErrRefreshInFlight):
		c.JSON(http.StatusAccepted, gin.H{"status": "in_flight"})
		return
	case errors.Is(err, oidc.ErrRefreshRejected), errors.Is(err, refresh.ErrNoCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Session can no longer be refreshed."})
		return
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh_failed", "error_description": "Identity provider is unavailable."})
		return
	}

	set, err := h.Credentials.Get(c.Request.Context(), authCtx.Subject)
	if err != nil || set == nil {
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed", "expires_at": set.ExpiresAt})
}

// SessionVisibility is the tab-became-visible hint. The manager decides
// whether the absence was long enough to warrant an early refresh.
func (h *AuthHandler) SessionVisibility(c *gin.Context) {
	authCtx, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	var req struct {
		AwaySeconds int64 `json:"away_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AwaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "away_seconds must be a non-negative integer."})
		return
	}

	if err := h.Refresher.NotifyVisible(c.Request.Context(), authCtx.Subject, time.Duration(req.AwaySeconds)*time.Second); err != nil {
		h.logger().Warn("visibility refresh failed", zap.String("subject", authCtx.Subject), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) sessionSubject(c *gin.Context) (subject, brand string, ok bool) {
	token, err := c.Cookie(session.CookieName)
	if err != nil || token == "" {
		authz := c.GetHeader("Authorization")
		if parts := strings.SplitN(authz, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return "", "", false
	}
	subject, brand, err = h.Sessions.Verify(token)
	if err != nil {
		return "", "", false
	}
	return subject, brand, true
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   h.SecureCookies || c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func domainTokenSet(subject, brand string, roles []string, resp *oidc.TokenResponse) domain.TokenSet {
	return domain.TokenSet{
		Subject:      subject,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
		Brand:        brand,
		Roles:        roles,
	}
}

// sanitizeReturnTo keeps redirects on-site. Absolute URLs and protocol
// relative forms are dropped.
func sanitizeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	return raw
}
