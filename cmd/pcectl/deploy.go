package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/seglab/pcectl/pkg/deploy"
	"github.com/seglab/pcectl/pkg/labels"
	"github.com/seglab/pcectl/pkg/secrets"
	"github.com/seglab/pcectl/pkg/types"
)

var (
	deployCluster      string
	deployChartPath    string
	deployNamespace    string
	deployValuesFile   string
	deployReleaseName  string
	deployRegistry     string
	deployCreateNS     bool
	deployDebug        bool
	deployLintFatal    bool
	deployMirrorImages bool
	deployMaxRetries   int
	deployRetryDelay   time.Duration
	deployInstallOnly  bool
	deployManageOnly   bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Provision a cluster and install the agent chart",
	Long: `Deploy runs the full workflow: provision the policy platform
resources for the cluster, install the agent chart with the resulting
identifiers, wait for the rollout, and reconcile labels onto the
workload profiles the agent registers.

--install-only skips provisioning and installs with the identifiers
already in the secrets service. --manage-only provisions and reconciles
labels without installing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if deployInstallOnly && deployManageOnly {
			return fmt.Errorf("--install-only and --manage-only are mutually exclusive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sc, err := newSecretsClient(cfg)
		if err != nil {
			return err
		}
		platform, err := newPlatformClient(ctx, cfg, sc)
		if err != nil {
			return err
		}
		engine := labels.NewEngine(platform, cfg.Convention)

		var record *types.ClusterRecord
		if deployInstallOnly {
			record, err = sc.FetchClusterSecrets(ctx, deployCluster)
			if err != nil {
				return fmt.Errorf("failed to retrieve cluster secrets for %s: %v", deployCluster, err)
			}
		} else {
			reconciler, closeCache := newReconciler(cfg, platform, sc, engine)
			defer closeCache()

			record, err = reconciler.Reconcile(ctx, deployCluster)
			if err != nil {
				return fmt.Errorf("failed to provision cluster %s: %v", deployCluster, err)
			}
			fmt.Printf("✓ Cluster %s provisioned\n", record.Name)
		}

		if deployManageOnly {
			if err := engine.ApplyToCluster(ctx, record.ID, record.Name); err != nil {
				return fmt.Errorf("failed to assign labels: %v", err)
			}
			fmt.Println("✓ Labels reconciled, skipping installation")
			return nil
		}

		driver := deploy.NewDriver(nil, engine)
		opts := deploy.Options{
			ChartPath:       deployChartPath,
			Namespace:       deployNamespace,
			ValuesFile:      deployValuesFile,
			ReleaseName:     deployReleaseName,
			Registry:        deployRegistry,
			CreateNamespace: deployCreateNS,
			Debug:           deployDebug,
			LintFatal:       deployLintFatal,
			MirrorImages:    deployMirrorImages,
			MaxRetries:      deployMaxRetries,
			RetryDelay:      deployRetryDelay,
		}

		if deployMirrorImages {
			if err := registryLogin(ctx, sc, driver, deployRegistry); err != nil {
				return err
			}
		}

		if err := driver.Deploy(ctx, record, opts); err != nil {
			return err
		}

		fmt.Printf("✓ Agent deployed to cluster %s\n", deployCluster)
		return nil
	},
}

// registryLogin authenticates docker with directory credentials before
// mirroring images.
func registryLogin(ctx context.Context, sc *secrets.Client, driver *deploy.Driver, registry string) error {
	username, password, err := sc.FetchADCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve registry credentials: %v", err)
	}
	return driver.RegistryLogin(ctx, registry, username, password)
}

func init() {
	deployCmd.Flags().StringVar(&deployCluster, "cluster", "", "cluster name (required)")
	deployCmd.Flags().StringVar(&deployChartPath, "chart-path", ".", "path to the agent chart directory")
	deployCmd.Flags().StringVar(&deployNamespace, "namespace", "illumio-system", "Kubernetes namespace to install into")
	deployCmd.Flags().StringVar(&deployValuesFile, "values-file", "values.yaml", "path to the chart values file")
	deployCmd.Flags().StringVar(&deployReleaseName, "release-name", "illumio", "helm release name")
	deployCmd.Flags().StringVar(&deployRegistry, "registry", "registry.access.redhat.com/ubi9", "container registry to use")
	deployCmd.Flags().BoolVar(&deployCreateNS, "create-namespace", false, "create the namespace if it does not exist")
	deployCmd.Flags().BoolVar(&deployDebug, "debug", false, "enable helm debug output")
	deployCmd.Flags().BoolVar(&deployLintFatal, "lint-fatal", false, "treat chart lint errors as fatal")
	deployCmd.Flags().BoolVar(&deployMirrorImages, "mirror-images", false, "mirror chart images to the target registry before installing")
	deployCmd.Flags().IntVar(&deployMaxRetries, "max-retries", 3, "install attempts before giving up")
	deployCmd.Flags().DurationVar(&deployRetryDelay, "retry-delay", 10*time.Second, "delay between install attempts")
	deployCmd.Flags().BoolVar(&deployInstallOnly, "install-only", false, "install using stored secrets, skip provisioning")
	deployCmd.Flags().BoolVar(&deployManageOnly, "manage-only", false, "provision and reconcile labels, skip installation")
	deployCmd.MarkFlagRequired("cluster")
}
