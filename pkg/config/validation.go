package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/database"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/rewrite"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, then the rules that span sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := cfg.Queue.Validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if cfg.Queue.Type == queue.TypePostgres && cfg.Database.Type != database.TypePostgres {
		return fmt.Errorf("queue: type postgres requires database.type postgres")
	}

	if cfg.Telemetry.Profiling.Enabled {
		if _, err := telemetry.ParseProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			return fmt.Errorf("telemetry.profiling: %w", err)
		}
	}

	for _, mask := range append([]string{cfg.CDN.Groups.IncludesMask, cfg.CDN.Groups.ThemeMask, cfg.Import.Files}, cfg.CDN.Groups.CustomMasks...) {
		if _, err := rewrite.CompileMask(mask); err != nil {
			return fmt.Errorf("cdn: invalid mask %q: %w", mask, err)
		}
	}
	if _, err := rewrite.NewPolicy(cfg.CDN.Reject, nil); err != nil {
		return fmt.Errorf("cdn.reject: %w", err)
	}

	if secret := cfg.API.JWT.Secret; secret != "" && len(secret) < 32 {
		return fmt.Errorf("api.jwt.secret: must be at least 32 characters")
	}
	if hash := cfg.API.Admin.PasswordHash; hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return fmt.Errorf("api.admin.password_hash: not a bcrypt hash: %w", err)
		}
	}

	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		return fmt.Errorf("metrics.port: conflicts with api.port %d", cfg.API.Port)
	}
	return nil
}

// formatValidationErrors renders each failure as "field: tag".
func formatValidationErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (value %v)", field, e.Tag(), e.Param(), e.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
