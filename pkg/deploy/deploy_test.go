package deploy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seglab/pcectl/pkg/types"
)

// fakeRunner records commands and answers from a script keyed by the
// command's first words.
type fakeRunner struct {
	calls []string
	// fail maps a command prefix to an error message.
	fail map[string]string
	// output maps a command prefix to stdout.
	output map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:   make(map[string]string),
		output: make(map[string]string),
	}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, call)

	for prefix, msg := range f.fail {
		if strings.HasPrefix(call, prefix) {
			return "", fmt.Errorf("%s: %s", prefix, msg)
		}
	}
	for prefix, out := range f.output {
		if strings.HasPrefix(call, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) count(prefix string) int {
	var n int
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

type fakeLabels struct {
	applied []string
	err     error
}

func (f *fakeLabels) ApplyToCluster(_ context.Context, clusterID, clusterName string) error {
	f.applied = append(f.applied, clusterID+"/"+clusterName)
	return f.err
}

func testRecord() *types.ClusterRecord {
	return &types.ClusterRecord{
		Name:       "akdevps01",
		ID:         "cc-id-1",
		Token:      "cc-token-1",
		PairingKey: "pk-1",
	}
}

func fastOptions() Options {
	return Options{
		ReleaseName:  "illumio",
		Namespace:    "illumio-system",
		ChartPath:    "./chart",
		ValuesFile:   "values.yaml",
		Registry:     "registry.internal/ubi9",
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
		SettleWait:   time.Millisecond,
		PollInterval: time.Millisecond,
		PollAttempts: 2,
	}
}

func TestDeploySucceedsAndDefersLabels(t *testing.T) {
	runner := newFakeRunner()
	runner.output["helm status"] = "NAME: illumio\nSTATUS: deployed\n"
	labels := &fakeLabels{}

	driver := NewDriver(runner, labels)
	err := driver.Deploy(context.Background(), testRecord(), fastOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, runner.count("helm install"))
	assert.Zero(t, runner.count("helm uninstall"))
	assert.Equal(t, []string{"cc-id-1/akdevps01"}, labels.applied)

	// The install carries the cluster identifiers and registry.
	var install string
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "helm install") {
			install = call
		}
	}
	assert.Contains(t, install, "--set cluster_id=cc-id-1")
	assert.Contains(t, install, "--set cluster_token=cc-token-1")
	assert.Contains(t, install, "--set cluster_code=pk-1")
	assert.Contains(t, install, "--set registry=registry.internal/ubi9")
	assert.Contains(t, install, "-n illumio-system")
	assert.Contains(t, install, "-f values.yaml")
}

func TestDeployRetriesWithCleanupThenFails(t *testing.T) {
	runner := newFakeRunner()
	runner.output["helm status"] = "NAME: illumio\nSTATUS: failed\n"

	driver := NewDriver(runner, nil)
	err := driver.Deploy(context.Background(), testRecord(), fastOptions())
	require.Error(t, err)

	var deployErr *DeployError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, 3, deployErr.Attempts)

	assert.Equal(t, 3, runner.count("helm install"), "exactly maxRetries install attempts")
	assert.Equal(t, 2, runner.count("helm uninstall"), "cleanup between attempts")
}

func TestDeployFailsPreflightWhenToolMissing(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["helm version"] = "command not found"

	driver := NewDriver(runner, nil)
	err := driver.Deploy(context.Background(), testRecord(), fastOptions())
	require.Error(t, err)

	var deployErr *DeployError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, "preflight", deployErr.Stage)
	assert.Zero(t, runner.count("helm install"))
}

func TestEnsureNamespaceIdempotent(t *testing.T) {
	runner := newFakeRunner()
	driver := NewDriver(runner, nil)

	require.NoError(t, driver.EnsureNamespace(context.Background(), "illumio-system"))
	assert.Zero(t, runner.count("kubectl create namespace"), "existing namespace not recreated")

	runner.fail["kubectl get namespace"] = "not found"
	require.NoError(t, driver.EnsureNamespace(context.Background(), "illumio-system"))
	assert.Equal(t, 1, runner.count("kubectl create namespace illumio-system"))
}

func TestLintFailureIsFatalOnlyWhenConfigured(t *testing.T) {
	runner := newFakeRunner()
	runner.fail["helm lint"] = "1 chart(s) failed"
	driver := NewDriver(runner, nil)

	require.NoError(t, driver.Lint(context.Background(), "./chart", false))

	err := driver.Lint(context.Background(), "./chart", true)
	require.Error(t, err)
	var deployErr *DeployError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, "lint", deployErr.Stage)
}

func TestDeployCreatesNamespaceWhenRequested(t *testing.T) {
	runner := newFakeRunner()
	runner.output["helm status"] = "STATUS: deployed"
	runner.fail["kubectl get namespace"] = "not found"

	opts := fastOptions()
	opts.CreateNamespace = true

	driver := NewDriver(runner, nil)
	require.NoError(t, driver.Deploy(context.Background(), testRecord(), opts))

	assert.Equal(t, 1, runner.count("kubectl create namespace"))

	var install string
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "helm install") {
			install = call
		}
	}
	assert.Contains(t, install, "--create-namespace")
}

func TestDeployEventuallyHealthy(t *testing.T) {
	runner := newFakeRunner()
	// First attempt never reports deployed; flip the status after the
	// first uninstall.
	statusCalls := 0
	scripted := &scriptedRunner{
		inner: runner,
		onRun: func(call string) (string, bool) {
			if strings.HasPrefix(call, "helm status") {
				statusCalls++
				if statusCalls > 2 {
					return "STATUS: deployed", true
				}
				return "STATUS: pending-install", true
			}
			return "", false
		},
	}

	driver := NewDriver(scripted, nil)
	require.NoError(t, driver.Deploy(context.Background(), testRecord(), fastOptions()))

	assert.Equal(t, 2, runner.count("helm install"))
	assert.Equal(t, 1, runner.count("helm uninstall"))
}

// scriptedRunner lets a test vary responses per call while still
// recording through the fake.
type scriptedRunner struct {
	inner *fakeRunner
	onRun func(call string) (string, bool)
}

func (s *scriptedRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	if out, ok := s.onRun(call); ok {
		s.inner.calls = append(s.inner.calls, call)
		return out, nil
	}
	return s.inner.Run(ctx, name, args...)
}

func TestLabelFailureAfterRolloutIsReported(t *testing.T) {
	runner := newFakeRunner()
	runner.output["helm status"] = "STATUS: deployed"
	labels := &fakeLabels{err: fmt.Errorf("profiles unavailable")}

	driver := NewDriver(runner, labels)
	err := driver.Deploy(context.Background(), testRecord(), fastOptions())
	require.Error(t, err)

	var deployErr *DeployError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, "labels", deployErr.Stage)
}
