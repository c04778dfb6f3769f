package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seglab/pcectl/pkg/log"
	"github.com/seglab/pcectl/pkg/types"
)

// DeployError reports a failed installation, including how many
// attempts were made.
type DeployError struct {
	Release  string
	Stage    string
	Attempts int
	Err      error
}

func (e *DeployError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("deployment of %s failed at %s after %d attempts: %v", e.Release, e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("deployment of %s failed at %s: %v", e.Release, e.Stage, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// LabelApplier reconciles labels against a cluster's workload profiles
// once the agent has registered them.
type LabelApplier interface {
	ApplyToCluster(ctx context.Context, clusterID, clusterName string) error
}

// Options control a single deployment.
type Options struct {
	ChartPath   string
	Namespace   string
	ValuesFile  string
	ReleaseName string
	Registry    string

	CreateNamespace bool
	Debug           bool
	// LintFatal makes chart lint errors abort the install instead of
	// only being reported.
	LintFatal bool
	// MirrorImages pulls, retags and pushes chart images to Registry
	// before installing.
	MirrorImages bool

	// MaxRetries bounds install attempts; each retry uninstalls the
	// prior attempt first.
	MaxRetries int
	RetryDelay time.Duration

	// SettleWait runs once after install before the first status poll.
	SettleWait   time.Duration
	PollInterval time.Duration
	PollAttempts int
}

func (o *Options) defaults() {
	if o.Namespace == "" {
		o.Namespace = "illumio-system"
	}
	if o.ChartPath == "" {
		o.ChartPath = "."
	}
	if o.ValuesFile == "" {
		o.ValuesFile = "values.yaml"
	}
	if o.ReleaseName == "" {
		o.ReleaseName = "illumio"
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 10 * time.Second
	}
	if o.SettleWait == 0 {
		o.SettleWait = 30 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.PollAttempts == 0 {
		o.PollAttempts = 6
	}
}

// Driver installs the agent chart and verifies the rollout.
type Driver struct {
	runner Runner
	labels LabelApplier
	logger zerolog.Logger
}

// NewDriver creates a deployment driver. labels may be nil when label
// assignment is handled elsewhere.
func NewDriver(runner Runner, labels LabelApplier) *Driver {
	if runner == nil {
		runner = NewRunner()
	}
	return &Driver{
		runner: runner,
		labels: labels,
		logger: log.WithComponent("deploy"),
	}
}

// CheckTools verifies the required tools are installed and on PATH.
func (d *Driver) CheckTools(ctx context.Context, needDocker bool) error {
	if _, err := d.runner.Run(ctx, "kubectl", "version", "--client"); err != nil {
		return fmt.Errorf("kubectl is not installed or not in PATH: %w", err)
	}
	if _, err := d.runner.Run(ctx, "helm", "version", "--short"); err != nil {
		return fmt.Errorf("helm is not installed or not in PATH: %w", err)
	}
	if needDocker {
		if _, err := d.runner.Run(ctx, "docker", "version"); err != nil {
			return fmt.Errorf("docker is not installed or not in PATH: %w", err)
		}
	}
	return nil
}

// EnsureNamespace creates the namespace when it does not exist yet.
func (d *Driver) EnsureNamespace(ctx context.Context, namespace string) error {
	if _, err := d.runner.Run(ctx, "kubectl", "get", "namespace", namespace); err == nil {
		d.logger.Debug().Str("namespace", namespace).Msg("Namespace already exists")
		return nil
	}

	if _, err := d.runner.Run(ctx, "kubectl", "create", "namespace", namespace); err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", namespace, err)
	}
	fmt.Printf("✓ Namespace %s created\n", namespace)
	return nil
}

// Lint validates the chart. Lint failures abort only when fatal is set.
func (d *Driver) Lint(ctx context.Context, chartPath string, fatal bool) error {
	out, err := d.runner.Run(ctx, "helm", "lint", chartPath)
	if err == nil {
		fmt.Println("✓ Helm chart validation successful")
		return nil
	}

	d.logger.Error().Err(err).Str("chart", chartPath).Msg("Helm chart validation failed")
	if fatal {
		return &DeployError{Stage: "lint", Err: err}
	}
	fmt.Println("Helm chart validation failed, continuing with installation anyway")
	if out != "" {
		d.logger.Debug().Str("output", out).Msg("Lint output")
	}
	return nil
}

// Deploy installs the chart with the cluster's identifiers, polls the
// release status, and retries with cleanup in between until the rollout
// is healthy or attempts run out. Labels are assigned only after a
// healthy rollout because workload profiles exist only once the agent
// registers.
func (d *Driver) Deploy(ctx context.Context, record *types.ClusterRecord, opts Options) error {
	opts.defaults()

	if err := d.CheckTools(ctx, opts.MirrorImages); err != nil {
		return &DeployError{Release: opts.ReleaseName, Stage: "preflight", Err: err}
	}

	if opts.CreateNamespace {
		if err := d.EnsureNamespace(ctx, opts.Namespace); err != nil {
			return &DeployError{Release: opts.ReleaseName, Stage: "namespace", Err: err}
		}
	}

	if err := d.Lint(ctx, opts.ChartPath, opts.LintFatal); err != nil {
		return err
	}

	if opts.MirrorImages {
		if err := d.MirrorImages(ctx, opts.ValuesFile, opts.Registry); err != nil {
			return &DeployError{Release: opts.ReleaseName, Stage: "mirror", Err: err}
		}
		// Point the chart at the mirrored copies.
		if err := RewriteRegistry(opts.ValuesFile, opts.Registry); err != nil {
			return &DeployError{Release: opts.ReleaseName, Stage: "mirror", Err: err}
		}
	}

	logger := log.WithRelease(opts.ReleaseName).With().Str("cluster", record.Name).Logger()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 1 {
			// Clear out whatever the failed attempt left behind before
			// trying again.
			d.uninstall(ctx, opts)
			logger.Info().Int("attempt", attempt).Msg("Retrying installation")
			select {
			case <-time.After(opts.RetryDelay):
			case <-ctx.Done():
				return &DeployError{Release: opts.ReleaseName, Stage: "install", Attempts: attempt - 1, Err: ctx.Err()}
			}
		}

		if err := d.install(ctx, record, opts); err != nil {
			lastErr = err
			logger.Error().Err(err).Int("attempt", attempt).Msg("Helm install failed")
			continue
		}
		fmt.Printf("✓ Helm install command executed (attempt %d)\n", attempt)

		select {
		case <-time.After(opts.SettleWait):
		case <-ctx.Done():
			return &DeployError{Release: opts.ReleaseName, Stage: "health", Attempts: attempt, Err: ctx.Err()}
		}

		if err := d.waitHealthy(ctx, opts); err != nil {
			lastErr = err
			logger.Error().Err(err).Int("attempt", attempt).Msg("Release did not become healthy")
			continue
		}

		fmt.Printf("✓ Release %s deployed\n", opts.ReleaseName)
		if d.labels != nil {
			if err := d.labels.ApplyToCluster(ctx, record.ID, record.Name); err != nil {
				return &DeployError{Release: opts.ReleaseName, Stage: "labels", Attempts: attempt, Err: err}
			}
		}
		return nil
	}

	return &DeployError{
		Release:  opts.ReleaseName,
		Stage:    "install",
		Attempts: opts.MaxRetries,
		Err:      lastErr,
	}
}

// install runs helm install with the cluster identifiers as values.
func (d *Driver) install(ctx context.Context, record *types.ClusterRecord, opts Options) error {
	args := []string{
		"install", opts.ReleaseName,
		opts.ChartPath,
		"-n", opts.Namespace,
		"-f", opts.ValuesFile,
		"--set", "cluster_id=" + record.ID,
		"--set", "cluster_token=" + record.Token,
		"--set", "cluster_code=" + record.PairingKey,
	}
	if opts.Registry != "" {
		args = append(args, "--set", "registry="+opts.Registry)
	}
	if opts.CreateNamespace {
		args = append(args, "--create-namespace")
	}
	if opts.Debug {
		args = append(args, "--debug")
	}

	out, err := d.runner.Run(ctx, "helm", args...)
	if err != nil {
		return err
	}
	if opts.Debug && out != "" {
		fmt.Println(out)
	}
	return nil
}

// waitHealthy polls helm status until the release reports deployed.
func (d *Driver) waitHealthy(ctx context.Context, opts Options) error {
	var lastStatus string
	for i := 0; i < opts.PollAttempts; i++ {
		if i > 0 {
			select {
			case <-time.After(opts.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		out, err := d.runner.Run(ctx, "helm", "status", opts.ReleaseName, "-n", opts.Namespace)
		if err != nil {
			lastStatus = err.Error()
			continue
		}
		if strings.Contains(out, "STATUS: deployed") {
			return nil
		}
		lastStatus = out
	}

	return fmt.Errorf("release %s not deployed after %d status checks: %s",
		opts.ReleaseName, opts.PollAttempts, strings.TrimSpace(lastStatus))
}

// uninstall removes a failed attempt's resources. Errors are logged
// only; an uninstall of a never-installed release is expected to fail.
func (d *Driver) uninstall(ctx context.Context, opts Options) {
	if _, err := d.runner.Run(ctx, "helm", "uninstall", opts.ReleaseName, "-n", opts.Namespace); err != nil {
		d.logger.Warn().Err(err).Str("release", opts.ReleaseName).Msg("Cleanup uninstall failed")
	}
}
