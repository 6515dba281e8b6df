package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/nmsu-cs/bbfs/internal/config"
)

var configSchemaOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect bbfsnode configuration",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate a JSON schema for the node config file",
	Long: `schema reflects internal/config.NodeConfig into a JSON schema, for
IDE autocompletion or config file validation.

Examples:
  bbfsnode config schema
  bbfsnode config schema --output node.schema.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigSchema,
}

func init() {
	configSchemaCmd.Flags().StringVarP(&configSchemaOutput, "output", "o", "", "output file (default: stdout)")
	configCmd.AddCommand(configSchemaCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.NodeConfig{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "bbfsnode configuration"
	schema.Description = "Configuration schema for the bbfs storage node server"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("bbfsnode: generate config schema: %w", err)
	}

	if configSchemaOutput != "" {
		if err := os.WriteFile(configSchemaOutput, out, 0o644); err != nil {
			return fmt.Errorf("bbfsnode: write config schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", configSchemaOutput)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
