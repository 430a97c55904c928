package config

import (
	"fmt"

	"github.com/marmos91/dittocdn/internal/cli/prompt"
	"github.com/marmos91/dittocdn/pkg/api"
	"github.com/marmos91/dittocdn/pkg/cdn/engine"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/spf13/cobra"
)

const minPasswordLength = 8

var (
	initForce       bool
	initInteractive bool
	initOpts        config.InitOptions
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a dittocdn configuration file with a random JWT secret.

By default the file is written to $XDG_CONFIG_HOME/dittocdn/config.yaml.
Use --config for another path. With --interactive the site URL, the engine
and the API admin password are asked for.

Examples:
  dittocdn config init
  dittocdn config init --site-root /srv/www --site-url https://example.com --engine s3
  dittocdn config init --interactive --config /etc/dittocdn/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Ask for the main settings")
	initCmd.Flags().StringVar(&initOpts.SiteRoot, "site-root", "", "Site document root (default: /var/www/html)")
	initCmd.Flags().StringVar(&initOpts.SiteURL, "site-url", "", "Public site URL (default: http://localhost)")
	initCmd.Flags().StringVar(&initOpts.Engine, "engine", "", "CDN engine (default: mirror)")
}

func runInit(cmd *cobra.Command, args []string) error {
	opts := initOpts
	opts.Force = initForce

	if initInteractive {
		if err := askInitOptions(&opts); err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}
	}

	var path string
	var err error
	if p := configPath(cmd); p != "" {
		path = p
		err = config.InitConfigToPath(p, opts)
	} else {
		path, err = config.InitConfig(opts)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Fill in the cdn section for your engine")
	_, _ = fmt.Fprintln(out, "  2. Check the backend with: dittocdn test")
	_, _ = fmt.Fprintln(out, "  3. Start the server with: dittocdn start")
	if opts.AdminPassword == "" {
		_, _ = fmt.Fprintln(out, "\nAPI login stays disabled until api.admin.password_hash is set.")
	}
	_, _ = fmt.Fprintln(out, "\nFor production, keep the JWT secret out of the file:")
	_, _ = fmt.Fprintf(out, "  export %s=$(openssl rand -hex 32)\n", api.EnvJWTSecret)
	return nil
}

func askInitOptions(opts *config.InitOptions) error {
	var err error
	if opts.SiteRoot, err = prompt.Input("Site document root", orDefault(opts.SiteRoot, "/var/www/html")); err != nil {
		return err
	}
	if opts.SiteURL, err = prompt.InputURL("Public site URL", orDefault(opts.SiteURL, "http://localhost")); err != nil {
		return err
	}

	options := make([]prompt.Option, 0, len(engine.Names()))
	for _, name := range engine.Names() {
		options = append(options, prompt.Option{Label: name, Value: name, Description: engineDescriptions[name]})
	}
	if opts.Engine, err = prompt.Select("CDN engine", options); err != nil {
		return err
	}

	ok, err := prompt.Confirm("Enable API login", true)
	if err != nil || !ok {
		return err
	}
	opts.AdminPassword, err = prompt.NewPassword("Admin password", minPasswordLength)
	return err
}

var engineDescriptions = map[string]string{
	engine.Mirror:     "Origin pull: the CDN fetches from the site, nothing is uploaded",
	engine.FTP:        "Upload to an FTP server",
	engine.S3:         "Upload to an Amazon S3 bucket",
	engine.CloudFront: "Upload to S3 and serve through a CloudFront distribution",
	engine.MinIO:      "Upload to an S3 compatible MinIO server",
	engine.FS:         "Copy to a local directory served by another host",
	engine.Memory:     "In-process store for tests",
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
