package config

import (
	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides.

YAML is printed unless -o json is given.

Examples:
  dittocdn config show
  dittocdn config show -o json --config /etc/dittocdn/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}
	p, err := printer(cmd)
	if err != nil {
		return err
	}
	if p.Format() == output.FormatJSON {
		return output.PrintJSON(p.Writer(), cfg)
	}
	return output.PrintYAML(p.Writer(), cfg)
}
