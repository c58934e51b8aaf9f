package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore defaults",
	RunE:  runConfigReset,
}

var configResetForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd)
	configResetCmd.Flags().BoolVarP(&configResetForce, "force", "f", false, "reset without confirmation")
}

var configKeys = []string{
	"component.port",
	"component.host_number",
	"component.application_url",
	"component.use_central",
	"central.port",
	"central.data_dir",
	"dashboard.refresh_interval",
	"log.level",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Current Configuration ===")
	for _, key := range configKeys {
		fmt.Printf("  %-28s: %v\n", key, getOrDefault(key, "(unset)"))
	}
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(none)"
	}
	fmt.Printf("\nconfig file: %s\n", configFile)
	return nil
}

func getOrDefault(key string, defaultVal any) any {
	val := viper.Get(key)
	if val == nil || val == "" {
		return defaultVal
	}
	return val
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	valid := false
	for _, k := range configKeys {
		if k == key {
			valid = true
			break
		}
	}
	if !valid {
		fmt.Printf("unknown config key: %s\n", key)
		fmt.Println("available keys:")
		for _, k := range configKeys {
			fmt.Printf("  %s\n", k)
		}
		return nil
	}

	viper.Set(key, value)
	if err := viper.WriteConfig(); err != nil {
		if err := viper.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	fmt.Printf("set %s = %s\n", key, value)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	if !configResetForce {
		fmt.Println("this restores every config value to its default.")
		fmt.Println("pass --force to proceed.")
		return nil
	}
	viper.Reset()
	fmt.Println("configuration reset to defaults.")
	return nil
}
