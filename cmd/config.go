package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/dockswap/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), configPath)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value, keeping comments",
	Long: `Set a configuration value by its dotted key, for example:

  dockswap config set states.b tv
  dockswap config set flags.drift-watch true
  dockswap config set conflict_policy keep-live

The file is restored when the resulting configuration does not validate.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if path == "" {
			return fmt.Errorf("no config file location; pass --config")
		}
		previous, readErr := os.ReadFile(path) //nolint:gosec // G304: user-selected config path
		if err := config.SetValue(path, args[0], args[1]); err != nil {
			return err
		}
		if err := validateFile(path); err != nil {
			if readErr == nil {
				_ = os.WriteFile(path, previous, 0o600)
			} else {
				_ = os.Remove(path)
			}
			return fmt.Errorf("not saved: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

// validateFile loads path on its own, without environment overrides, and
// validates the result.
func validateFile(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	out := config.Defaults()
	if err := v.Unmarshal(&out); err != nil {
		return err
	}
	return out.Validate()
}

func init() {
	configCmd.AddCommand(configPathCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
