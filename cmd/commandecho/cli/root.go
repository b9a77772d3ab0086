package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/commandecho/internal/config"
	"github.com/felixgeelhaar/commandecho/internal/observe"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool

	cfg *config.Config
)

// skipLoad marks commands that manage the config file themselves.
const skipLoad = "skip-config-load"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "commandecho",
	Short: "Voice assistant with long-term memory",
	Long: `CommandEcho listens for requests, runs system commands such as volume,
brightness and app launching, and answers everything else with a language
model that remembers what you told it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()

		configPath = resolveConfigPath()
		if cmd.Annotations[skipLoad] == "true" {
			return nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			if !errors.Is(err, config.ErrMalformed) {
				return err
			}
			obs := newObserver(cmd)
			obs.Log().Warn().Err(err).Str("path", configPath).Msg("config unreadable; using defaults")
			obs.Close()
		}
		cfg = c
		return nil
	},
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("COMMANDECHO_CONFIG"); env != "" {
		return env
	}
	return config.DefaultPath
}

func newObserver(cmd *cobra.Command) *observe.Observer {
	if jsonOutput {
		return observe.NewJSON(cmd.ErrOrStderr(), verbose)
	}
	return observe.New(cmd.ErrOrStderr(), verbose)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.json, .yaml or .toml); defaults to $COMMANDECHO_CONFIG or "+config.DefaultPath)
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON logs and machine-readable output")
}
