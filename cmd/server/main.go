package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/apercky/documinds-sub000/internal/adapter/cache"
	"github.com/apercky/documinds-sub000/internal/bootstrap"
	"github.com/apercky/documinds-sub000/internal/brand"
	"github.com/apercky/documinds-sub000/internal/config"
	"github.com/apercky/documinds-sub000/internal/credentials"
	"github.com/apercky/documinds-sub000/internal/crypto"
	httptransport "github.com/apercky/documinds-sub000/internal/http"
	"github.com/apercky/documinds-sub000/internal/http/handler"
	"github.com/apercky/documinds-sub000/internal/http/middleware"
	"github.com/apercky/documinds-sub000/internal/oidc"
	"github.com/apercky/documinds-sub000/internal/refresh"
	"github.com/apercky/documinds-sub000/internal/repository"
	"github.com/apercky/documinds-sub000/internal/server"
	"github.com/apercky/documinds-sub000/internal/session"
	"github.com/apercky/documinds-sub000/internal/settings"
	"github.com/apercky/documinds-sub000/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newBrandRepository,
			newSettingRepository,
			newRedisClient,
			newLoginStateStore,
			newCredentialStore,
			newCipher,
			newSessionManager,
			newOIDCClient,
			newRefreshManager,
			newRateLimiter,
			brand.NewResolver,
			settings.NewService,
			newAuthHandler,
			newSettingsHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureDefaultBrand, startRefreshManager, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newBrandRepository(pool *pgxpool.Pool) repository.BrandRepository {
	return repository.NewPostgresBrandRepo(pool)
}

func newSettingRepository(pool *pgxpool.Pool) repository.SettingRepository {
	return repository.NewPostgresSettingRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newLoginStateStore(client redis.UniversalClient) cacheadapter.StateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newCredentialStore(client redis.UniversalClient) credentials.Store {
	return credentials.NewRedisStore(client)
}

func newCipher(cfg config.Config) (*crypto.Cipher, error) {
	return crypto.New(cfg.EncryptionSecret)
}

func newSessionManager(cfg config.Config) (*session.Manager, error) {
	return session.NewManager(cfg.SessionSecret, cfg.SessionTTL)
}

func newOIDCClient(cfg config.Config) *oidc.HTTPClient {
	return oidc.NewHTTPClient(oidc.Provider{
		IssuerURL:        cfg.OIDCIssuerURL,
		ClientID:         cfg.OIDCClientID,
		ClientSecret:     cfg.OIDCClientSecret,
		AuthorizationURL: cfg.OIDCAuthorizationURL,
		TokenURL:         cfg.OIDCTokenURL,
		UserinfoURL:      cfg.OIDCUserinfoURL,
		EndSessionURL:    cfg.OIDCEndSessionURL,
		Scopes:           cfg.OIDCScopes,
	}, nil)
}

func newRefreshManager(cfg config.Config, client *oidc.HTTPClient, store credentials.Store, logger *zap.Logger) *refresh.Manager {
	rc := refresh.Config{
		Interval:     cfg.RefreshInterval,
		Jitter:       cfg.RefreshJitter,
		RefreshAhead: cfg.RefreshAhead,
		BaseDelay:    cfg.RefreshBaseDelay,
		MaxDelay:     cfg.RefreshMaxDelay,
		MaxRetries:   cfg.RefreshMaxRetries,
		AwayShort:    cfg.AwayShort,
		AwayMedium:   cfg.AwayMedium,
		AwayLong:     cfg.AwayLong,
	}
	return refresh.NewManager(rc, client, store, cfg.OIDCClientID, logger)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(
	cfg config.Config,
	client *oidc.HTTPClient,
	states cacheadapter.StateStore,
	sessions *session.Manager,
	store credentials.Store,
	refresher *refresh.Manager,
	logger *zap.Logger,
) *handler.AuthHandler {
	return &handler.AuthHandler{
		OIDC:          client,
		States:        states,
		Sessions:      sessions,
		Credentials:   store,
		Refresher:     refresher,
		ClientID:      cfg.OIDCClientID,
		RedirectURL:   cfg.OIDCRedirectURL,
		PostLogoutURL: cfg.PostLogoutURL,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	}
}

func newSettingsHandler(svc *settings.Service, logger *zap.Logger) *handler.SettingsHandler {
	return &handler.SettingsHandler{Settings: svc, Logger: logger}
}

func newAuthMiddleware(sessions *session.Manager, store credentials.Store, logger *zap.Logger) *middleware.Auth {
	return &middleware.Auth{Sessions: sessions, Credentials: store, Logger: logger}
}

func startRefreshManager(lc fx.Lifecycle, manager *refresh.Manager) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})
			go func() {
				manager.Run(runCtx)
				close(done)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			manager.Close()
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
