package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seglab/pcectl/pkg/log"
	"github.com/seglab/pcectl/pkg/pce"
	"github.com/seglab/pcectl/pkg/secrets"
	"github.com/seglab/pcectl/pkg/types"
)

// State tracks where a cluster is in the provisioning state machine.
type State string

const (
	StateUnknown     State = "unknown"
	StateDiscovering State = "discovering"
	StateExisting    State = "existing"
	StateMissing     State = "missing"
	StateProvisioned State = "provisioned"
)

// Platform is the subset of the policy platform API the reconciler
// drives.
type Platform interface {
	ListContainerClusters(ctx context.Context, name string) ([]pce.ContainerCluster, error)
	CreateContainerCluster(ctx context.Context, name, description string) (*pce.ContainerCluster, error)
	ListPairingProfiles(ctx context.Context, name string) ([]pce.PairingProfile, error)
	CreatePairingProfile(ctx context.Context, profile *pce.PairingProfile) (*pce.PairingProfile, error)
	GeneratePairingKey(ctx context.Context, profileID string) (string, error)
}

// SecretStore persists cluster records in the secrets service.
type SecretStore interface {
	FetchClusterSecrets(ctx context.Context, clusterName string) (*types.ClusterRecord, error)
	StoreClusterSecrets(ctx context.Context, record *types.ClusterRecord) error
}

// LabelSource supplies the label refs a pairing profile is scoped with.
type LabelSource interface {
	PairingLabels(ctx context.Context, clusterName string) ([]pce.Ref, error)
}

// LocalCache is the optional local record cache consulted as a
// tertiary discovery source.
type LocalCache interface {
	GetCluster(name string) (*types.ClusterRecord, error)
	SaveCluster(record *types.ClusterRecord) error
}

// FallbackWriter mirrors the record to a local file after provisioning.
type FallbackWriter func(record *types.ClusterRecord) (string, error)

// Reconciler converges a cluster name onto a fully provisioned set of
// platform resources: cluster label, container cluster, pairing
// profile, pairing key, and stored secrets. Every creation step first
// checks for existence, so re-running is safe.
type Reconciler struct {
	platform Platform
	secrets  SecretStore
	labels   LabelSource
	cache    LocalCache
	fallback FallbackWriter
	logger   zerolog.Logger

	state State
}

// NewReconciler creates a reconciler. cache and fallback may be nil.
func NewReconciler(platform Platform, store SecretStore, labelSource LabelSource, cache LocalCache, fallback FallbackWriter) *Reconciler {
	return &Reconciler{
		platform: platform,
		secrets:  store,
		labels:   labelSource,
		cache:    cache,
		fallback: fallback,
		logger:   log.WithComponent("provision"),
		state:    StateUnknown,
	}
}

// State returns the reconciler's current state.
func (r *Reconciler) State() State {
	return r.state
}

// discovery holds what each source knows about the cluster.
type discovery struct {
	platformID string
	profileID  string
	stored     *types.ClusterRecord
	cached     *types.ClusterRecord
}

func (d *discovery) exists() bool {
	return d.platformID != "" || d.profileID != "" ||
		(d.stored != nil && (d.stored.ID != "" || d.stored.Token != "" || d.stored.PairingKey != "")) ||
		(d.cached != nil && d.cached.ID != "")
}

// Reconcile provisions the named cluster and returns its complete
// record.
func (r *Reconciler) Reconcile(ctx context.Context, clusterName string) (*types.ClusterRecord, error) {
	r.state = StateDiscovering
	logger := r.logger.With().Str("cluster", clusterName).Logger()

	d, err := r.discover(ctx, clusterName)
	if err != nil {
		return nil, err
	}

	var record *types.ClusterRecord
	if d.exists() {
		r.state = StateExisting
		logger.Info().
			Bool("platform", d.platformID != "").
			Bool("profile", d.profileID != "").
			Bool("secrets", d.stored != nil).
			Msg("Cluster already known, backfilling missing identifiers")
		record, err = r.reconcileExisting(ctx, clusterName, d)
	} else {
		r.state = StateMissing
		logger.Info().Msg("Cluster not found, provisioning from scratch")
		record, err = r.provisionMissing(ctx, clusterName)
	}
	if err != nil {
		return nil, err
	}

	if err := r.persist(ctx, record); err != nil {
		return nil, err
	}

	r.state = StateProvisioned
	return record, nil
}

// discover queries each source for traces of the cluster. A missing
// secrets entry is a discovery signal, not an error; anything else from
// the secrets service or the platform aborts discovery.
func (r *Reconciler) discover(ctx context.Context, clusterName string) (*discovery, error) {
	d := &discovery{}

	clusters, err := r.platform.ListContainerClusters(ctx, clusterName)
	if err != nil {
		return nil, fmt.Errorf("failed to discover container cluster: %w", err)
	}
	for i := range clusters {
		if clusters[i].Name == clusterName {
			d.platformID = clusters[i].ID()
			break
		}
	}

	profiles, err := r.platform.ListPairingProfiles(ctx, clusterName)
	if err != nil {
		return nil, fmt.Errorf("failed to discover pairing profile: %w", err)
	}
	for i := range profiles {
		if profiles[i].Name == clusterName {
			d.profileID = profiles[i].ID()
			break
		}
	}

	stored, err := r.secrets.FetchClusterSecrets(ctx, clusterName)
	if err != nil {
		var notFound *secrets.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to check stored cluster secrets: %w", err)
		}
		// Partial records still contribute to backfill.
	}
	d.stored = stored

	if r.cache != nil {
		cached, err := r.cache.GetCluster(clusterName)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Local cache unreadable, ignoring")
		} else {
			d.cached = cached
		}
	}

	return d, nil
}

// provisionMissing runs the full creation path: labels, container
// cluster, pairing profile, pairing key.
func (r *Reconciler) provisionMissing(ctx context.Context, clusterName string) (*types.ClusterRecord, error) {
	refs, err := r.labels.PairingLabels(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✓ Cluster labels ready for %s\n", clusterName)

	cluster, err := r.platform.CreateContainerCluster(ctx, clusterName, "")
	if err != nil {
		return nil, err
	}
	fmt.Printf("✓ Container cluster %s created\n", clusterName)

	profile, err := r.platform.CreatePairingProfile(ctx, newPairingProfile(clusterName, refs))
	if err != nil {
		return nil, err
	}
	fmt.Printf("✓ Pairing profile %s created\n", clusterName)

	pairingKey, err := r.platform.GeneratePairingKey(ctx, profile.ID())
	if err != nil {
		return nil, err
	}
	fmt.Printf("✓ Pairing key for %s created\n", clusterName)

	return &types.ClusterRecord{
		Name:             clusterName,
		ID:               cluster.ID(),
		Token:            cluster.ContainerClusterToken,
		PairingProfileID: profile.ID(),
		PairingKey:       pairingKey,
	}, nil
}

// reconcileExisting merges the discovery sources into one record and
// creates whatever is still missing. Live platform data wins for the
// cluster id; the stored pairing key is authoritative because the
// platform cannot re-issue a generated key.
func (r *Reconciler) reconcileExisting(ctx context.Context, clusterName string, d *discovery) (*types.ClusterRecord, error) {
	record := &types.ClusterRecord{Name: clusterName}

	record.ID = d.platformID
	record.PairingProfileID = d.profileID

	for _, source := range []*types.ClusterRecord{d.stored, d.cached} {
		if source == nil {
			continue
		}
		if record.ID == "" {
			record.ID = source.ID
		}
		if record.Token == "" {
			record.Token = source.Token
		}
		if record.PairingKey == "" {
			record.PairingKey = source.PairingKey
		}
		if record.PairingProfileID == "" {
			record.PairingProfileID = source.PairingProfileID
		}
	}

	if record.ID == "" {
		// Traces exist (a profile or stale secrets) but the cluster
		// object itself is gone or was never created. Recover by
		// creating just the cluster object.
		r.logger.Warn().Str("cluster", clusterName).
			Msg("Cluster known but platform id unresolved, creating cluster object")
		cluster, err := r.platform.CreateContainerCluster(ctx, clusterName, "")
		if err != nil {
			return nil, err
		}
		record.ID = cluster.ID()
		record.Token = cluster.ContainerClusterToken
		fmt.Printf("✓ Container cluster %s recovered\n", clusterName)
	}

	if record.PairingProfileID == "" {
		refs, err := r.labels.PairingLabels(ctx, clusterName)
		if err != nil {
			return nil, err
		}
		profile, err := r.platform.CreatePairingProfile(ctx, newPairingProfile(clusterName, refs))
		if err != nil {
			return nil, err
		}
		record.PairingProfileID = profile.ID()
		fmt.Printf("✓ Pairing profile %s created\n", clusterName)
	}

	if record.PairingKey == "" {
		pairingKey, err := r.platform.GeneratePairingKey(ctx, record.PairingProfileID)
		if err != nil {
			return nil, err
		}
		record.PairingKey = pairingKey
		fmt.Printf("✓ Pairing key for %s created\n", clusterName)
	}

	return record, nil
}

// persist writes the record to every sink. The secrets service is the
// durable copy; the local cache and fallback file only soften its
// failure modes, so their errors are logged, not fatal.
func (r *Reconciler) persist(ctx context.Context, record *types.ClusterRecord) error {
	if err := r.secrets.StoreClusterSecrets(ctx, record); err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.SaveCluster(record); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to update local cache")
		}
	}
	if r.fallback != nil {
		if path, err := r.fallback(record); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to write fallback secrets file")
		} else {
			r.logger.Debug().Str("path", path).Msg("Wrote fallback secrets file")
		}
	}
	return nil
}

// newPairingProfile builds the profile body used for agent pairing.
// Every label dimension and the enforcement settings are locked so
// paired workloads cannot drift from the provisioned posture.
func newPairingProfile(clusterName string, labels []pce.Ref) *pce.PairingProfile {
	if labels == nil {
		labels = []pce.Ref{}
	}
	return &pce.PairingProfile{
		Name:                clusterName,
		EnforcementMode:     types.EnforcementVisibilityOnly,
		EnforcementModeLock: true,
		Enabled:             true,
		KeyLifespan:         "unlimited",
		AllowedUsesPerKey:   "unlimited",
		LogTraffic:          false,
		LogTrafficLock:      true,
		VisibilityLevel:     "flow_summary",
		VisibilityLevelLock: true,
		EnvLabelLock:        true,
		LocLabelLock:        true,
		RoleLabelLock:       true,
		AppLabelLock:        true,
		VENType:             "server",
		Labels:              labels,
	}
}
