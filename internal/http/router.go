package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/apercky/documinds-sub000/internal/brand"
	"github.com/apercky/documinds-sub000/internal/config"
	"github.com/apercky/documinds-sub000/internal/http/handler"
	"github.com/apercky/documinds-sub000/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	settingsHandler *handler.SettingsHandler,
	authMiddleware *middleware.Auth,
	resolver *brand.Resolver,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/login", authHandler.Login)
		authGroup.GET("/callback", authHandler.Callback)
		authGroup.GET("/logout", authHandler.Logout)
		authGroup.POST("/logout", authHandler.Logout)
	}

	api := r.Group("/api")
	{
		api.GET("/me", authMiddleware.Require(), authHandler.Me)

		sessionGroup := api.Group("/session", authMiddleware.Require())
		{
			sessionGroup.POST("/refresh", authHandler.SessionRefresh)
			sessionGroup.POST("/visibility", authHandler.SessionVisibility)
		}

		brands := api.Group("/brands/:code", middleware.RequireBrand(resolver))
		{
			brands.GET("/settings", authMiddleware.Require(), settingsHandler.List)
			brands.PUT("/settings", authMiddleware.Require("editor", "admin"), settingsHandler.Upsert)
		}
	}

	return r
}
