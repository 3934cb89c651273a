// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment constants.
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Log        LogConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Threat     ThreatConfig
	Reputation ReputationConfig
	Cache      CacheConfig
	CORS       CORSConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name string
	Env  string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	HTTPSRequired   bool
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the persistent store configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// LoginRatePerMinute throttles /auth/login per source IP.
	LoginRatePerMinute int
	LoginBurst         int
}

// RateLimitConfig holds request-budget configuration.
type RateLimitConfig struct {
	// GlobalPerMinute is the per-identity default when a key carries no
	// override.
	GlobalPerMinute int
	// RoutePerMinute is the shared per-route budget.
	RoutePerMinute int
	// Window is the rolling window length for both budgets.
	Window time.Duration
	// BlockThreshold multiplies the identity limit; reaching
	// limit*BlockThreshold escalates to a standing ban.
	BlockThreshold int
}

// ThreatConfig holds threat-detection configuration.
type ThreatConfig struct {
	BurstWindow    time.Duration
	BurstThreshold int
	// RulesFile optionally overrides the compiled-in pattern rules with a
	// YAML rule table.
	RulesFile string
}

// ReputationConfig holds IP-filter cache configuration.
type ReputationConfig struct {
	CacheTTL time.Duration
	// AllowCountTTL bounds store load for the allowlist-size probe.
	AllowCountTTL time.Duration
}

// CacheConfig holds response-cache configuration.
type CacheConfig struct {
	TTL      time.Duration
	MaxItems int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// Load reads configuration from environment variables with defaults
// suitable for local development.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "gateway"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 4000),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodySize:     getEnvInt64("REQUEST_BODY_LIMIT", 200*1024),
			HTTPSRequired:   getEnvBool("HTTPS_ENABLED", false),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "gateway"),
			Password:        getEnv("DB_PASSWORD", "gateway"),
			Name:            getEnv("DB_NAME", "gateway"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", "change-this-secret"),
			TokenTTL:           getEnvDuration("JWT_TOKEN_TTL", time.Hour),
			LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:         getEnvInt("LOGIN_BURST", 5),
		},
		RateLimit: RateLimitConfig{
			GlobalPerMinute: getEnvInt("GLOBAL_RATE_LIMIT_PER_MINUTE", 200),
			RoutePerMinute:  getEnvInt("ROUTE_RATE_LIMIT_PER_MINUTE", 100),
			Window:          getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			BlockThreshold:  getEnvInt("RATE_LIMIT_BLOCK_THRESHOLD", 3),
		},
		Threat: ThreatConfig{
			BurstWindow:    getEnvDuration("BURST_WINDOW", 10*time.Second),
			BurstThreshold: getEnvInt("BURST_THRESHOLD", 50),
			RulesFile:      getEnv("THREAT_RULES_FILE", ""),
		},
		Reputation: ReputationConfig{
			CacheTTL:      getEnvDuration("IP_CACHE_TTL", time.Minute),
			AllowCountTTL: getEnvDuration("ALLOWLIST_COUNT_TTL", time.Minute),
		},
		Cache: CacheConfig{
			TTL:      getEnvDuration("CACHE_TTL", 30*time.Second),
			MaxItems: getEnvInt("CACHE_MAX_ITEMS", 500),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{getEnv("CORS_ALLOWED_ORIGIN", "*")},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
			MaxAge:         300,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.RateLimit.GlobalPerMinute < 1 {
		return fmt.Errorf("global rate limit must be positive, got %d", c.RateLimit.GlobalPerMinute)
	}
	if c.RateLimit.RoutePerMinute < 1 {
		return fmt.Errorf("route rate limit must be positive, got %d", c.RateLimit.RoutePerMinute)
	}
	if c.RateLimit.BlockThreshold < 1 {
		return fmt.Errorf("block threshold must be positive, got %d", c.RateLimit.BlockThreshold)
	}
	if c.Cache.MaxItems < 1 {
		return fmt.Errorf("cache max items must be positive, got %d", c.Cache.MaxItems)
	}
	if c.IsProduction() && c.Auth.JWTSecret == "change-this-secret" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
