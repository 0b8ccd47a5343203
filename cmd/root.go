package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"foresight/internal/config"
	"foresight/internal/logging"
)

var (
	verbose    bool
	configPath string
	version    = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "foresight",
	Short: "Startup analysis dashboard backed by the Dashboard API",
	Long: `Foresight stores startup documents, asks the Dashboard API to analyse
them, and serves the resulting dashboard and chat over HTTP.

Quick Start:
  foresight migrate --config config.yaml   # create the tables
  foresight check --config config.yaml     # verify configuration and backends
  foresight serve --config config.yaml     # start the HTTP server`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FORESIGHT_CONFIG"), "Path to a JSON or YAML config file")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig reads the config and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Format)
	log.Debug().Str("config", configPath).Msg("configuration loaded")
	return cfg, nil
}
