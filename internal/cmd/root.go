package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plandeck/plandeck/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "plandeck",
	Short: "DAG plan execution engine on git worktrees",
	Long: `Plandeck executes plans: directed graphs of work units, each running
in its own git worktree. Dependencies flow forward through worktree
base commits and completed leaf work merges back into a target branch.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/plandeck/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PLANDECK")
	// Nested keys map to env vars with underscores, e.g.
	// PLANDECK_ENGINE_DEFAULT_MAX_PARALLEL for engine.default_max_parallel.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
