package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seglab/pcectl/pkg/labels"
	"github.com/seglab/pcectl/pkg/log"
)

var provisionCluster string

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision policy platform resources for a cluster",
	Long: `Provision discovers or creates the container cluster, pairing
profile and pairing key for the named cluster, and stores the resulting
identifiers in the secrets service. Re-running against an existing
cluster backfills whatever is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		logger := log.WithCluster(provisionCluster)
		logger.Info().Str("environment", cfg.Environment).Msg("Provisioning platform resources")

		sc, err := newSecretsClient(cfg)
		if err != nil {
			return err
		}
		platform, err := newPlatformClient(ctx, cfg, sc)
		if err != nil {
			return err
		}

		engine := labels.NewEngine(platform, cfg.Convention)
		reconciler, closeCache := newReconciler(cfg, platform, sc, engine)
		defer closeCache()

		record, err := reconciler.Reconcile(ctx, provisionCluster)
		if err != nil {
			return fmt.Errorf("failed to provision cluster %s: %v", provisionCluster, err)
		}

		fmt.Printf("✓ Cluster %s provisioned\n", record.Name)
		fmt.Printf("  Cluster ID:      %s\n", record.ID)
		fmt.Printf("  Pairing profile: %s\n", record.PairingProfileID)
		return nil
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionCluster, "cluster", "", "cluster name (required)")
	provisionCmd.MarkFlagRequired("cluster")
}
