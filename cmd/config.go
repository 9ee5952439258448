package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tagfill/internal/config"
	"github.com/conneroisu/tagfill/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect tagfill configuration",
	Long: `Inspect tagfill configuration files and settings.

Examples:
  tagfill config validate                      # Validate .tagfill.yml
  tagfill config validate --file other.yml     # Validate a specific file
  tagfill config show                          # Show the resolved configuration
  tagfill config show --format json`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a tagfill configuration file.

This command checks for:
- Scan paths that are missing or use parent directory references
- Render depth outside 1-1024
- Data files without a .json, .yaml or .yml extension
- Ports outside 0-65535 and malformed hostnames
- Store and notify URLs with the wrong scheme
- Unknown log levels and formats

Examples:
  tagfill config validate              # Validate .tagfill.yml in current directory
  tagfill config validate --file config.yml  # Validate specific file
  tagfill config validate --strict    # Treat warnings as errors`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the resolved configuration: the config file, TAGFILL_ environment
overrides, command-line flags and defaults merged together. Passwords in
connection URLs are redacted.

Examples:
  tagfill config show                  # Show all configuration
  tagfill config show --format json   # Show in JSON format`,
	RunE: runConfigShow,
}

var (
	configFile   string
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().
		StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default: .tagfill.yml)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	AddFlagValidation(configShowCmd, "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"yaml", "yml", "json"})
	})
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	targetFile := configFile
	if targetFile == "" {
		targetFile = ".tagfill.yml"
	}
	if _, err := os.Stat(targetFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file %s does not exist", targetFile)
	}

	fmt.Fprintf(out, "Validating configuration file: %s\n", targetFile)

	v := viper.New()
	v.SetConfigFile(targetFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	result := config.ValidateConfigWithDetails(&cfg)
	if result.Valid && !result.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}

	fmt.Fprint(out, result.String())
	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(result.Warnings))
	}
	fmt.Fprintf(out, "Configuration is valid with %d warnings. Use --strict to treat warnings as errors.\n", len(result.Warnings))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return showConfig(cmd.OutOrStdout(), cfg, configFormat)
}

// showConfig writes cfg in format with connection URL passwords redacted.
func showConfig(out io.Writer, cfg *config.Config, format string) error {
	redacted := *cfg
	if redacted.Store.DatabaseURL != "" {
		redacted.Store.DatabaseURL = logging.RedactURL(redacted.Store.DatabaseURL)
	}
	if redacted.Notify.AmqpURL != "" {
		redacted.Notify.AmqpURL = logging.RedactURL(redacted.Notify.AmqpURL)
	}

	encoded, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	switch format {
	case "yaml", "yml":
		_, err := out.Write(encoded)
		return err
	case "json":
		// Round trip through yaml so the keys match the config file.
		var generic map[string]interface{}
		if err := yaml.Unmarshal(encoded, &generic); err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(generic)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}
