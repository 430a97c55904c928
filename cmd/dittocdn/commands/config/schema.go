package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittocdn/pkg/config"
	"github.com/spf13/cobra"
)

var schemaFile string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema of the configuration file",
	Long: `Generate a JSON schema for the dittocdn configuration file, for IDE
completion and validation of config.yaml.

Examples:
  dittocdn config schema
  dittocdn config schema --file config.schema.json`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaFile, "file", "", "Output file (default: stdout)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "dittocdn configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if schemaFile != "" {
		if err := os.WriteFile(schemaFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaFile)
		return nil
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
