// Package cli implements the mbeictl command tree: running a component or
// the central store, inspecting the YAML config, and a live dashboard.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "mbeictl",
	Short: "Run and inspect a model-based event inference deployment",
	Long: `mbeictl runs the two process kinds a deployment is built from —
query components and the central durability store — and gives you a way
to inspect and watch them.

Getting started:
  mbeictl component -q queries.yaml -a assignments.yaml -u urls.yaml -p 9001
  mbeictl central -d ./data -p 9000
  mbeictl dashboard -u localhost:10001
  mbeictl config show`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion overrides the version reported by "mbeictl version".
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "could not determine home directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(home + "/.mbei")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MBEI")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
		}
	}
}
