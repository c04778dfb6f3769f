package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/seglab/pcectl/pkg/types"
)

const testValues = `
cven:
  registry: registry.access.redhat.com/ubi9
  repo: illumio/cven
  imageTag: "23.2.0"
kubelink:
  image:
    registry: registry.access.redhat.com/ubi9
    repo: illumio/kubelink
    imageTag: "3.3.1"
extras:
  - registry: quay.io
    repo: helper/sidecar
    imageTag: latest
plain: not-an-image
`

func writeValues(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCollectImageRefs(t *testing.T) {
	var values interface{}
	require.NoError(t, yaml.Unmarshal([]byte(testValues), &values))

	refs := collectImageRefs(values)
	require.Len(t, refs, 3)

	images := make(map[string]bool)
	for _, ref := range refs {
		images[ref.String()] = true
	}
	assert.True(t, images["registry.access.redhat.com/ubi9/illumio/cven:23.2.0"])
	assert.True(t, images["registry.access.redhat.com/ubi9/illumio/kubelink:3.3.1"])
	assert.True(t, images["quay.io/helper/sidecar:latest"])
}

func TestMirrorImagesPullsTagsAndPushes(t *testing.T) {
	path := writeValues(t, testValues)

	runner := newFakeRunner()
	driver := NewDriver(runner, nil)

	require.NoError(t, driver.MirrorImages(context.Background(), path, "registry.internal"))

	assert.Equal(t, 3, runner.count("docker pull"))
	assert.Equal(t, 3, runner.count("docker tag"))
	assert.Equal(t, 3, runner.count("docker push registry.internal/"))
	assert.Contains(t, runner.calls, "docker tag registry.access.redhat.com/ubi9/illumio/cven:23.2.0 registry.internal/illumio/cven:23.2.0")
}

func TestMirrorImagesFailsOnPullError(t *testing.T) {
	path := writeValues(t, testValues)

	runner := newFakeRunner()
	runner.fail["docker pull"] = "access denied"
	driver := NewDriver(runner, nil)

	err := driver.MirrorImages(context.Background(), path, "registry.internal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to pull")
}

func TestMirrorImagesEmptyValues(t *testing.T) {
	path := writeValues(t, "")

	driver := NewDriver(newFakeRunner(), nil)
	err := driver.MirrorImages(context.Background(), path, "registry.internal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDeployMirrorPathRewritesValues(t *testing.T) {
	path := writeValues(t, testValues)

	runner := newFakeRunner()
	runner.output["helm status"] = "STATUS: deployed"

	opts := Options{
		ReleaseName:  "illumio",
		Namespace:    "illumio-system",
		ChartPath:    "./chart",
		ValuesFile:   path,
		Registry:     "registry.internal",
		MirrorImages: true,
		MaxRetries:   1,
		RetryDelay:   1,
		SettleWait:   1,
		PollInterval: 1,
		PollAttempts: 1,
	}

	driver := NewDriver(runner, nil)
	require.NoError(t, driver.Deploy(context.Background(), &types.ClusterRecord{
		Name: "akdevps01", ID: "cc-id-1", Token: "t", PairingKey: "pk",
	}, opts))

	assert.Equal(t, 3, runner.count("docker pull"))
	assert.Equal(t, 1, runner.count("docker version"), "preflight checks docker when mirroring")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "registry.internal")
	assert.NotContains(t, string(data), "registry.access.redhat.com")
}

func TestRewriteRegistry(t *testing.T) {
	path := writeValues(t, `
image: registry.access.redhat.com/ubi9/illumio/cven
nested:
  repo: quay.io/helper/sidecar
plain: standalone
number: 42
`)

	require.NoError(t, RewriteRegistry(path, "registry.internal"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var values map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &values))

	assert.Equal(t, "registry.internal/ubi9/illumio/cven", values["image"])
	nested := values["nested"].(map[string]interface{})
	assert.Equal(t, "registry.internal/helper/sidecar", nested["repo"])
	assert.Equal(t, "standalone", values["plain"])
	assert.Equal(t, 42, values["number"])
}

func TestRewriteRegistryLeavesPathsAlone(t *testing.T) {
	path := writeValues(t, `
image: registry.access.redhat.com/ubi9/illumio/cven
logPath: /var/log/agent
socket: /run/containerd/containerd.sock
`)

	require.NoError(t, RewriteRegistry(path, "registry.internal"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var values map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &values))

	// Only strings with a registry segment before the first slash are
	// image references; absolute paths stay untouched.
	assert.Equal(t, "registry.internal/ubi9/illumio/cven", values["image"])
	assert.Equal(t, "/var/log/agent", values["logPath"])
	assert.Equal(t, "/run/containerd/containerd.sock", values["socket"])
}
