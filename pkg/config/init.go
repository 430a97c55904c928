package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittocdn/pkg/api/auth"
)

const configHeader = `# dittocdn configuration file
#
# Values left out fall back to their defaults. Any key can be overridden
# with an environment variable: cdn.s3.bucket becomes DITTOCDN_CDN_S3_BUCKET.
#
# Print the JSON schema with: dittocdn config schema

`

// InitOptions seeds a new configuration file.
type InitOptions struct {
	// Force overwrites an existing file.
	Force bool

	// Default: /var/www/html
	SiteRoot string

	// Default: http://localhost
	SiteURL string

	// Engine defaults to mirror.
	Engine string

	// AdminPassword is hashed into api.admin.password_hash. Empty leaves
	// API login disabled.
	AdminPassword string
}

// InitConfig writes a new config file at the default location and returns
// its path.
func InitConfig(opts InitOptions) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, opts); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a new config file at path.
func InitConfigToPath(path string, opts InitOptions) error {
	if !opts.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg, err := generateConfig(opts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_ = enc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func generateConfig(opts InitOptions) (*Config, error) {
	cfg := defaultTemplate()

	cfg.Site.Root = opts.SiteRoot
	if cfg.Site.Root == "" {
		cfg.Site.Root = "/var/www/html"
	}
	cfg.Site.URL = opts.SiteURL
	if cfg.Site.URL == "" {
		cfg.Site.URL = "http://localhost"
	}
	if opts.Engine != "" {
		cfg.CDN.Engine = opts.Engine
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}
	cfg.API.JWT.Secret = secret

	if opts.AdminPassword != "" {
		hash, err := auth.HashPassword(opts.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to hash admin password: %w", err)
		}
		cfg.API.Admin.PasswordHash = hash
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}
	return cfg, nil
}

// GenerateSecret returns a random 64-character hex string for JWT signing.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
