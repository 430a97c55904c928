// Package commands implements the dittocdn command line.
package commands

import (
	"os"

	"github.com/marmos91/dittocdn/cmd/dittocdn/commands/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "dittocdn",
	Short: "dittocdn - CDN offload for site assets",
	Long: `dittocdn mirrors the static assets and uploads of a site to a CDN
backend and rewrites page markup so browsers fetch them from the CDN.

Transfers that fail are queued and retried by the background processor.
Bulk jobs export the media library, import externally hosted files and
rename old CDN domains in post bodies.

Use "dittocdn [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittocdn/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
