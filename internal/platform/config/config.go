// Package config loads and validates service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file <
// environment variables. Environment variables use the MCPREG_ prefix
// (e.g. MCPREG_DATABASE_URL overrides database.url), so the same binary
// runs with a config.yaml in local development and with pure
// environment variables in containerized deployments.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL pool configuration.
type DatabaseConfig struct {
	URL          string        `mapstructure:"url"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

// AuthConfig holds identity-provider settings.
type AuthConfig struct {
	// IssuerURL is the OIDC issuer used for discovery and JWKS.
	IssuerURL string `mapstructure:"issuer_url"`
	// Audience is the expected `aud` claim of inbound bearer tokens.
	Audience string `mapstructure:"audience"`
	// AdminGroupID, when set, is the identity-provider group whose
	// membership is reconciled into the user directory's is_admin flag
	// on each authenticated request.
	AdminGroupID string `mapstructure:"admin_group_id"`
	// BootstrapTokenHash is a bcrypt hash of the X-Admin-Token value
	// accepted on admin routes before any directory user has the admin
	// flag. Empty disables the bootstrap path.
	BootstrapTokenHash string `mapstructure:"bootstrap_token_hash"`
}

// RedisConfig holds the rate-limiter backend settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig bounds mutating requests per principal.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the optional file at path plus the
// environment, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "postgres://localhost:5432/mcp_registry?sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_lifetime", 30*time.Minute)

	// Empty defaults register the keys with viper so AutomaticEnv values
	// survive Unmarshal.
	v.SetDefault("auth.issuer_url", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.admin_group_id", "")
	v.SetDefault("auth.bootstrap_token_hash", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("MCPREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Auth.IssuerURL == "" {
		return fmt.Errorf("auth.issuer_url is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("auth.audience is required")
	}
	if c.RateLimit.Enabled && c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive when enabled")
	}
	return nil
}
