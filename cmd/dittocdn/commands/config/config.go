// Package config implements the configuration subcommands.
package config

import (
	"github.com/marmos91/dittocdn/internal/cli/output"
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage the dittocdn configuration file.

Subcommands:
  init      Create a configuration file
  show      Display the effective configuration
  validate  Validate a configuration file
  schema    Generate the JSON schema for IDE validation`,
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}

// configPath reads the root --config flag.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func printer(cmd *cobra.Command) (*output.Printer, error) {
	name, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, false), nil
}
