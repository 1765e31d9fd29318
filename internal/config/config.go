package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OIDCIssuerURL        string
	OIDCClientID         string
	OIDCClientSecret     string
	OIDCAuthorizationURL string
	OIDCTokenURL         string
	OIDCUserinfoURL      string
	OIDCEndSessionURL    string
	OIDCScopes           []string
	OIDCRedirectURL      string
	PostLogoutURL        string

	EncryptionSecret string
	SessionSecret    string
	SessionTTL       time.Duration
	SecureCookies    bool

	RefreshInterval   time.Duration
	RefreshJitter     time.Duration
	RefreshAhead      time.Duration
	RefreshBaseDelay  time.Duration
	RefreshMaxDelay   time.Duration
	RefreshMaxRetries int
	AwayShort         time.Duration
	AwayMedium        time.Duration
	AwayLong          time.Duration

	DefaultBrandCode string
	DefaultBrandName string

	ServiceName          string
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	issuerURL := strings.TrimRight(strings.TrimSpace(os.Getenv("OIDC_ISSUER_URL")), "/")
	if issuerURL == "" {
		return Config{}, fmt.Errorf("OIDC_ISSUER_URL is required")
	}
	clientID := strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("OIDC_CLIENT_ID is required")
	}

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		OIDCIssuerURL:        issuerURL,
		OIDCClientID:         clientID,
		OIDCClientSecret:     os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCAuthorizationURL: getEnv("OIDC_AUTHORIZATION_URL", issuerURL+"/protocol/openid-connect/auth"),
		OIDCTokenURL:         getEnv("OIDC_TOKEN_URL", issuerURL+"/protocol/openid-connect/token"),
		OIDCUserinfoURL:      getEnv("OIDC_USERINFO_URL", issuerURL+"/protocol/openid-connect/userinfo"),
		OIDCEndSessionURL:    getEnv("OIDC_END_SESSION_URL", issuerURL+"/protocol/openid-connect/logout"),
		OIDCScopes:           getList("OIDC_SCOPES", []string{"openid", "profile", "email"}),
		OIDCRedirectURL:      getEnv("OIDC_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		PostLogoutURL:        getEnv("POST_LOGOUT_URL", "http://localhost:8080/"),

		EncryptionSecret: os.Getenv("ENCRYPTION_SECRET"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		SessionTTL:       getDuration("SESSION_TTL", 8*time.Hour),
		SecureCookies:    getBool("SECURE_COOKIES", false),

		RefreshInterval:   getDuration("REFRESH_SWEEP_INTERVAL", 4*time.Minute),
		RefreshJitter:     getDuration("REFRESH_SWEEP_JITTER", 30*time.Second),
		RefreshAhead:      getDuration("REFRESH_AHEAD", 2*time.Minute),
		RefreshBaseDelay:  getDuration("REFRESH_BASE_DELAY", 2*time.Second),
		RefreshMaxDelay:   getDuration("REFRESH_MAX_DELAY", time.Minute),
		RefreshMaxRetries: getInt("REFRESH_MAX_RETRIES", 3),
		AwayShort:         getDuration("AWAY_SHORT", time.Minute),
		AwayMedium:        getDuration("AWAY_MEDIUM", 15*time.Minute),
		AwayLong:          getDuration("AWAY_LONG", time.Hour),

		DefaultBrandCode: getEnv("DEFAULT_BRAND_CODE", "2_20"),
		DefaultBrandName: getEnv("DEFAULT_BRAND_NAME", "Default Brand"),

		ServiceName:          getEnv("SERVICE_NAME", "documinds-auth"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Brand-Code"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
