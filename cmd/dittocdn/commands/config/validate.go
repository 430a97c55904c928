package config

import (
	"fmt"

	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/cdn/engine"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate the dittocdn configuration file.

Checks syntax, required fields and value ranges, then builds the configured
engine without contacting it. Use 'dittocdn test' to reach the backend.

Examples:
  dittocdn config validate
  dittocdn config validate --config /etc/dittocdn/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if _, err := engine.New(cfg.CDN.Config, nil); err != nil {
		return fmt.Errorf("cdn: %w", err)
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.API.IsEnabled() {
		if cfg.API.GetJWTSecret() == "" {
			warnings = append(warnings, "JWT secret not configured, the API server will not start")
		}
		if cfg.API.Admin.PasswordHash == "" {
			warnings = append(warnings, "api.admin.password_hash not set, API login is disabled")
		}
	}
	if cfg.Queue.Interval == 0 {
		warnings = append(warnings, "queue.interval is 0, queued transfers only move on 'dittocdn process'")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")
	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.KeyValues(out, [][2]string{
		{"Site root", cfg.Site.Root},
		{"Site URL", cfg.Site.URL},
		{"CDN engine", cfg.CDN.Engine},
		{"Queue store", cfg.Queue.Type},
		{"Database", string(cfg.Database.Type)},
		{"API port", fmt.Sprintf("%d", cfg.API.Port)},
		{"Log level", cfg.Logging.Level},
	})
}
