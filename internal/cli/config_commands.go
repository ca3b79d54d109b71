// Package cli provides configuration management commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage docforge configuration",
		Long: `Configuration management commands for docforge.

Commands:
  show  - Display current configuration
  get   - Print one configuration value
  set   - Update one configuration value
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigGetCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := configStore().Load()
			if err != nil {
				return err
			}

			for _, key := range config.Keys() {
				value, err := settings.Get(key)
				if err != nil {
					return err
				}
				if key == "ai_api_key" && value != "" {
					value = maskSecret(value)
				}
				fmt.Printf("%-16s %s\n", key, value)
			}
			return nil
		},
	}
}

// newConfigGetCmd creates the 'config get' command.
func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := configStore().Load()
			if err != nil {
				return err
			}
			value, err := settings.Get(args[0])
			if err != nil {
				return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.Keys(), ", "))
			}
			fmt.Println(value)
			return nil
		},
	}
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := configStore().Load()
			if err != nil {
				return err
			}
			if err := settings.Set(args[0], args[1]); err != nil {
				return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.Keys(), ", "))
			}
			if err := configStore().Save(settings); err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			fmt.Println(path)
			return nil
		},
	}
}

// maskSecret hides all but the last four characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
