// Package config provides environment-based configuration for the mentorship
// session core.
//
// Configuration is loaded from environment variables using Viper, with
// defaults suitable for local development: a SQLite profile store, the
// in-process identity provider and no Redis.
//
// # Environment Variables
//
//   - LOG_LEVEL: Logging level (debug, info, warn, error). Default: info
//   - PORT: HTTP server port. Default: 8080
//   - DB_TYPE: Database type (sqlite, postgres, mysql). Default: sqlite
//   - DSN: Database connection string. Default: mentorship.db
//   - REDIS_ADDR: Redis address for the shared profile cache and lockout store. Default: disabled
//   - DEFAULT_ROLE: Role given to a profile created on first login. Default: mentee
//   - LOGIN_TIMEOUT: Upper bound for a login call. Default: 15s
//   - PROVIDER: Identity provider (local, remote). Default: local
//   - SESSION_STRATEGY: Local provider tokens (jwt, database). Default: jwt
//
// # Example Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Starting on port %d with %s provider\n", cfg.Port, cfg.Provider)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/getkayan/mentorship/core/profile"
	"github.com/spf13/viper"
)

const (
	ProviderLocal  = "local"
	ProviderRemote = "remote"

	StrategyJWT      = "jwt"
	StrategyDatabase = "database"
)

type Config struct {
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	Port            int    `mapstructure:"PORT"`
	DBType          string `mapstructure:"DB_TYPE"` // sqlite, postgres, mysql
	DSN             string `mapstructure:"DSN"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`

	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	ProfileCacheTTL  time.Duration `mapstructure:"PROFILE_CACHE_TTL"`
	ProfileCacheSize int           `mapstructure:"PROFILE_CACHE_SIZE"`

	DefaultRole  string        `mapstructure:"DEFAULT_ROLE"`
	LoginTimeout time.Duration `mapstructure:"LOGIN_TIMEOUT"`

	Provider        string        `mapstructure:"PROVIDER"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	SessionStrategy string        `mapstructure:"SESSION_STRATEGY"`

	RemoteURL          string `mapstructure:"REMOTE_URL"`
	RemoteClientID     string `mapstructure:"REMOTE_CLIENT_ID"`
	RemoteClientSecret string `mapstructure:"REMOTE_CLIENT_SECRET"`

	LockoutMaxFailures int           `mapstructure:"LOCKOUT_MAX_FAILURES"`
	LockoutDuration    time.Duration `mapstructure:"LOCKOUT_DURATION"`

	TelemetryEnabled bool   `mapstructure:"TELEMETRY_ENABLED"`
	OTLPEndpoint     string `mapstructure:"OTLP_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_TYPE", "sqlite")
	v.SetDefault("DSN", "mentorship.db")
	v.SetDefault("SKIP_AUTO_MIGRATE", false)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("PROFILE_CACHE_TTL", "5m")
	v.SetDefault("PROFILE_CACHE_SIZE", 1024)
	v.SetDefault("DEFAULT_ROLE", string(profile.LeastPrivileged))
	v.SetDefault("LOGIN_TIMEOUT", "15s")
	v.SetDefault("PROVIDER", ProviderLocal)
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("SESSION_TTL", "1h")
	v.SetDefault("SESSION_STRATEGY", StrategyJWT)
	v.SetDefault("REMOTE_URL", "")
	v.SetDefault("REMOTE_CLIENT_ID", "")
	v.SetDefault("REMOTE_CLIENT_SECRET", "")
	v.SetDefault("LOCKOUT_MAX_FAILURES", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("TELEMETRY_ENABLED", false)
	v.SetDefault("OTLP_ENDPOINT", "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the rest of the process cannot act on.
func (c *Config) Validate() error {
	if _, err := profile.ParseRole(c.DefaultRole); err != nil {
		return fmt.Errorf("config: DEFAULT_ROLE: %w", err)
	}
	switch c.Provider {
	case ProviderLocal:
	case ProviderRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("config: REMOTE_URL is required when PROVIDER=%s", ProviderRemote)
		}
	default:
		return fmt.Errorf("config: unknown PROVIDER %q", c.Provider)
	}
	switch c.SessionStrategy {
	case StrategyJWT, StrategyDatabase:
	default:
		return fmt.Errorf("config: unknown SESSION_STRATEGY %q", c.SessionStrategy)
	}
	if c.LoginTimeout <= 0 {
		return fmt.Errorf("config: LOGIN_TIMEOUT must be positive")
	}
	return nil
}

// Role returns the configured first-login role. Validate has already checked it.
func (c *Config) Role() profile.Role {
	r, err := profile.ParseRole(c.DefaultRole)
	if err != nil {
		return profile.LeastPrivileged
	}
	return r
}
