package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/auth"
	"github.com/apercky/documinds-sub000/internal/credentials"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/session"
)

const authContextKey = "authContext"

// Auth is the single enforcement point wrapping every protected operation.
// It validates the session proof, loads live credentials, enforces roles,
// and injects the resolved auth context. It performs no business logic.
type Auth struct {
	Sessions    *session.Manager
	Credentials credentials.Store
	Logger      *zap.Logger
}

// Require returns middleware that admits callers holding a valid session
// and at least one of the required roles. With no roles, any authenticated
// caller passes.
func (m *Auth) Require(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proof := sessionProof(c)
		if proof == "" {
			abortUnauthorized(c, "Authentication required.")
			return
		}

		subject, _, err := m.Sessions.Verify(proof)
		if err != nil {
			m.log().Debug("session proof rejected", zap.Error(err))
			abortUnauthorized(c, "Invalid or expired session.")
			return
		}

		tokenSet, err := m.Credentials.Get(c.Request.Context(), subject)
		if err != nil {
			m.log().Error("credential lookup failed", zap.String("subject", subject), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Credential store unavailable.",
			})
			return
		}
		if tokenSet == nil || tokenSet.AccessToken == "" {
			abortUnauthorized(c, "Session expired, please sign in again.")
			return
		}

		if !tokenSet.HasAnyRole(requiredRoles) {
			abortForbidden(c)
			return
		}

		c.Set(authContextKey, auth.NewContext(
			subject,
			tokenSet.AccessToken,
			tokenSet.RefreshToken,
			tokenSet.IDToken,
			tokenSet.Brand,
			tokenSet.Roles,
		))
		c.Next()
	}
}

// GetAuthContext returns the auth context injected by Require.
func GetAuthContext(c *gin.Context) (*auth.Context, bool) {
	value, ok := c.Get(authContextKey)
	if !ok {
		return nil, false
	}
	authCtx, ok := value.(*auth.Context)
	return authCtx, ok
}

func (m *Auth) log() *zap.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return zap.L()
}

// sessionProof extracts the signed session token from the cookie or, for
// non-browser clients, the Authorization header.
func sessionProof(c *gin.Context) string {
	if cookie, err := c.Cookie(session.CookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, description string) {
	_ = c.Error(domain.ErrUnauthorized)
	abortNegotiated(c, http.StatusUnauthorized, "unauthorized", description)
}

func abortForbidden(c *gin.Context) {
	_ = c.Error(domain.ErrForbidden)
	abortNegotiated(c, http.StatusForbidden, "forbidden", "You are not authorized for this action.")
}

// abortNegotiated renders the failure as JSON, or as a single terminal SSE
// error event for streaming consumers, so a client reading a stream does
// not mistake a truncated response for success.
func abortNegotiated(c *gin.Context, status int, code, description string) {
	if wantsEventStream(c) {
		c.Status(status)
		c.Header("Content-Type", "text/event-stream")
		c.SSEvent("error", gin.H{"error": code, "error_description": description})
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": description})
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}
