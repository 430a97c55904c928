package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/queue"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := defaultTemplate()
	cfg.DataDir = t.TempDir()
	cfg.Site.Root = "/srv/www"
	cfg.Site.URL = "https://example.com"
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig(t)))
}

func TestValidate_DefaultConfigNeedsSite(t *testing.T) {
	err := Validate(GetDefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Site.Root")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"api port out of range", func(c *Config) { c.API.Port = 70000 }, "max"},
		{"negative metrics port", func(c *Config) { c.Metrics.Port = -1 }, "min"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "lte"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "required"},
		{"unknown engine", func(c *Config) { c.CDN.Engine = "rsync" }, "oneof"},
		{"site url not a url", func(c *Config) { c.Site.URL = "example" }, "url"},
		{"negative process limit", func(c *Config) { c.Queue.ProcessLimit = -1 }, "gte"},
		{"proxy without origin", func(c *Config) { c.Proxy.Enabled = true }, "required_if"},
		{"unknown queue type", func(c *Config) { c.Queue.Type = "redis" }, "oneof"},
		{"postgres queue on sqlite", func(c *Config) { c.Queue.Type = queue.TypePostgres }, "requires database.type postgres"},
		{"postgres without host", func(c *Config) {
			c.Database.Type = database.TypePostgres
			c.Database.Postgres.Database = "cdn"
			c.Database.Postgres.User = "cdn"
		}, "postgres host is required"},
		{"bad reject uri", func(c *Config) { c.CDN.Reject.URIs = []string{"("} }, "cdn.reject"},
		{"short jwt secret", func(c *Config) { c.API.JWT.Secret = "short" }, "at least 32"},
		{"password hash not bcrypt", func(c *Config) { c.API.Admin.PasswordHash = "plaintext" }, "not a bcrypt hash"},
		{"bad profile type", func(c *Config) {
			c.Telemetry.Profiling.Enabled = true
			c.Telemetry.Profiling.ProfileTypes = []string{"heap-ish"}
		}, "telemetry.profiling"},
		{"metrics on api port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.API.Port
		}, "conflicts with api.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_AcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := validConfig(t)
	cfg.API.Admin.PasswordHash = string(hash)
	cfg.API.JWT.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_MetricsPortIgnoredWhenAPIDisabled(t *testing.T) {
	cfg := validConfig(t)
	disabled := false
	cfg.API.Enabled = &disabled
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.API.Port
	assert.NoError(t, Validate(cfg))
}
