package api

import (
	"os"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
)

// EnvJWTSecret overrides api.jwt.secret.
const EnvJWTSecret = "DITTOCDN_API_JWT_SECRET"

// APIConfig configures the REST API HTTP server.
type APIConfig struct {
	// Enabled controls whether `start` serves the API. A pointer tells
	// "not set" (enabled) from an explicit false.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds whole responses, so it also caps job pages.
	// Default: 5m
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout cancels handlers that run longer.
	// Default: 5m
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`

	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// JWTConfig configures token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key, at least 32 characters.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// Default: 15m
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`

	// Default: 168h
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" yaml:"refresh_token_duration"`
}

// AdminConfig holds the single API operator account.
type AdminConfig struct {
	// Default: "admin"
	Username string `mapstructure:"username" yaml:"username"`

	// PasswordHash is a bcrypt hash, written by `config init`.
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`
}

// IsEnabled reports whether the API should be served.
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.JWT.AccessTokenDuration == 0 {
		c.JWT.AccessTokenDuration = 15 * time.Minute
	}
	if c.JWT.RefreshTokenDuration == 0 {
		c.JWT.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
func (c *APIConfig) GetJWTSecret() string {
	envSecret := os.Getenv(EnvJWTSecret)
	if envSecret != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != envSecret {
			logger.Warn("JWT secret from environment variable overrides config file value",
				"env_var", EnvJWTSecret)
		}
		return envSecret
	}
	return c.JWT.Secret
}
