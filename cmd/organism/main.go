package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"organism/internal/config"
	"organism/internal/logging"
)

var (
	// Global flags
	configPath string
	dbPath     string
	debug      bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "organism",
	Short: "organism - a persistent event-driven state runtime",
	Long: `organism maintains a bounded state vector that evolves through a
decay-accumulate-clip integration loop over a durable event log. Versioned
linear operators couple events into the state; online learning writes new
operator versions and a regression checker rolls bad ones back.

Run 'organism run' to start the server and autonomous loop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the organism database (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// loadConfig resolves config from file, env, and flags, in that order.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if debug {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
