package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/socketgate/socketgate/internal/config"
)

// redacted replaces secrets in printed configuration.
const redacted = "********"

var configDev bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration socketgate would start with, after the config
file, environment overrides and defaults are applied, as YAML.

The admin token is redacted.

Examples:
  socketgate config
  socketgate config --dev`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configDev, "dev", false, "Apply development mode defaults")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if configDev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if used := config.ConfigFileUsed(); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg)
}

// writeConfigYAML encodes cfg with secrets redacted.
func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	out := *cfg
	if out.Admin.Token != "" {
		out.Admin.Token = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
