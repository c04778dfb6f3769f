package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/seglab/pcectl/pkg/config"
	"github.com/seglab/pcectl/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagConfig   string
	flagEnv      string
	flagLogLevel string
	flagLogJSON  bool

	// runID tags every log line of one invocation so interleaved
	// pipeline output stays attributable.
	runID = uuid.New().String()[:8]
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pcectl",
	Short: "pcectl - provision and deploy the policy platform agent",
	Long: `pcectl provisions policy platform resources for Kubernetes
clusters and deploys the agent into them.

Given a cluster name it discovers or creates the container cluster,
pairing profile and pairing key on the platform, stores the resulting
identifiers in the secrets service, installs the agent chart, and
reconciles labels onto the workload profiles once the agent registers.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.Level(flagLogLevel),
			JSONOutput: flagLogJSON,
		})
		log.Logger.Debug().Str("run_id", runID).Str("version", Version).Msg("Starting pcectl")
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pcectl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "", "environment (dev, test, stg, prod); overrides ENVIRONMENT")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit JSON logs")

	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(authKeyCmd)
}

// loadConfig reads the configuration and applies the --env override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagEnv != "" {
		cfg.Environment = flagEnv
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
