// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler over Redis.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// PollerConfig provides settings for the cron-invoked poller endpoints.
type PollerConfig interface {
	GetPollerToken() string
	GetPollerBatchSize() int
}

// ChannelConfig provides settings for the outbound messaging channel API.
type ChannelConfig interface {
	GetChannelAPIURL() string
	GetChannelAPITimeout() time.Duration
	GetChannelCredentialsTTL() time.Duration
}

// WebhookConfig provides settings for the inbound event webhook.
type WebhookConfig interface {
	GetWebhookVerifyToken() string
}

// EngineConfig provides settings for the orchestration engine.
type EngineConfig interface {
	GetDedupCacheSize() int
	GetDedupRetention() time.Duration
	GetTakeoverDefaultDuration() time.Duration
	GetSettingsCacheTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	JWTAccessSecret         string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	PollerToken             string
	PollerBatchSize         int
	ChannelAPIURL           string
	ChannelAPITimeout       time.Duration
	ChannelCredentialsTTL   time.Duration
	WebhookVerifyToken      string
	DedupCacheSize          int
	DedupRetention          time.Duration
	TakeoverDefaultDuration time.Duration
	SettingsCacheTTL        time.Duration
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// PollerConfig implementation
func (c *Config) GetPollerToken() string  { return c.PollerToken }
func (c *Config) GetPollerBatchSize() int { return c.PollerBatchSize }

// ChannelConfig implementation
func (c *Config) GetChannelAPIURL() string                { return c.ChannelAPIURL }
func (c *Config) GetChannelAPITimeout() time.Duration     { return c.ChannelAPITimeout }
func (c *Config) GetChannelCredentialsTTL() time.Duration { return c.ChannelCredentialsTTL }

// WebhookConfig implementation
func (c *Config) GetWebhookVerifyToken() string { return c.WebhookVerifyToken }

// EngineConfig implementation
func (c *Config) GetDedupCacheSize() int                    { return c.DedupCacheSize }
func (c *Config) GetDedupRetention() time.Duration          { return c.DedupRetention }
func (c *Config) GetTakeoverDefaultDuration() time.Duration { return c.TakeoverDefaultDuration }
func (c *Config) GetSettingsCacheTTL() time.Duration        { return c.SettingsCacheTTL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		JWTAccessSecret:         getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:            corsAllowAll,
		CORSOrigins:             corsOrigins,
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        getEnvInt("ASYNQ_CONCURRENCY", 10),
		PollerToken:             getEnv("POLLER_TOKEN", ""),
		PollerBatchSize:         getEnvInt("POLLER_BATCH_SIZE", 50),
		ChannelAPIURL:           getEnv("CHANNEL_API_URL", ""),
		ChannelAPITimeout:       getEnvDuration("CHANNEL_API_TIMEOUT", 10*time.Second),
		ChannelCredentialsTTL:   getEnvDuration("CHANNEL_CREDENTIALS_TTL", 5*time.Minute),
		WebhookVerifyToken:      getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		DedupCacheSize:          getEnvInt("DEDUP_CACHE_SIZE", 500),
		DedupRetention:          getEnvDuration("DEDUP_RETENTION", 7*24*time.Hour),
		TakeoverDefaultDuration: getEnvDuration("TAKEOVER_DEFAULT_DURATION", 5*time.Minute),
		SettingsCacheTTL:        getEnvDuration("SETTINGS_CACHE_TTL", time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required outside development")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
