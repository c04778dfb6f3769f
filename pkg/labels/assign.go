package labels

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seglab/pcectl/pkg/log"
	"github.com/seglab/pcectl/pkg/pce"
	"github.com/seglab/pcectl/pkg/types"
)

// restrictionKeys are the label keys applied to the default workload
// profile. data and riskscore accept multiple values; the rest exactly
// one.
var restrictionKeys = []string{
	types.LabelKeyData,
	types.LabelKeyKubeAPI,
	types.LabelKeyMetadataAPI,
	types.LabelKeyRiskScore,
}

func multiValueKey(key string) bool {
	return key == types.LabelKeyData || key == types.LabelKeyRiskScore
}

// PlatformClient is the subset of the platform API the engine needs.
type PlatformClient interface {
	ListLabels(ctx context.Context, key, value string) ([]pce.Label, error)
	EnsureLabel(ctx context.Context, key, value string) (*pce.Label, error)
	ListWorkloadProfiles(ctx context.Context, clusterID string) ([]pce.WorkloadProfile, error)
	UpdateWorkloadProfile(ctx context.Context, clusterID, profileID string, update *pce.WorkloadProfile) error
}

// Engine reconciles labels against the workload profiles of a cluster.
type Engine struct {
	client PlatformClient
	conv   Convention
	logger zerolog.Logger
}

// NewEngine creates a label engine using the given naming convention.
func NewEngine(client PlatformClient, conv Convention) *Engine {
	return &Engine{
		client: client,
		conv:   conv,
		logger: log.WithComponent("labels"),
	}
}

// ApplyToCluster reconciles labels on every workload profile of the
// cluster. Profiles with a namespace get a namespace label; the default
// profile (no namespace) gets the restriction label set. A failure on
// one profile is logged and does not stop the remaining profiles.
func (e *Engine) ApplyToCluster(ctx context.Context, clusterID, clusterName string) error {
	profiles, err := e.client.ListWorkloadProfiles(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("failed to list workload profiles: %w", err)
	}

	logger := e.logger.With().Str("cluster", clusterName).Logger()
	var failures int
	for i := range profiles {
		profile := &profiles[i]
		var err error
		if profile.Namespace != "" {
			err = e.assignNamespaceLabel(ctx, clusterID, profile)
		} else {
			err = e.assignDefaultLabels(ctx, clusterID, profile)
		}
		if err != nil {
			failures++
			logger.Error().Err(err).
				Str("namespace", profile.Namespace).
				Str("profile", profile.ID()).
				Msg("Label assignment failed for profile")
		}
	}

	if failures == len(profiles) && failures > 0 {
		return fmt.Errorf("label assignment failed for all %d profiles", failures)
	}
	logger.Info().Int("profiles", len(profiles)).Int("failures", failures).Msg("Label assignment complete")
	return nil
}

// assignNamespaceLabel ensures a label whose value equals the profile's
// namespace exists and is in the profile's assigned set. Re-running
// leaves the set unchanged.
func (e *Engine) assignNamespaceLabel(ctx context.Context, clusterID string, profile *pce.WorkloadProfile) error {
	label, err := e.client.EnsureLabel(ctx, types.LabelKeyNamespace, profile.Namespace)
	if err != nil {
		return fmt.Errorf("failed to ensure namespace label %s: %w", profile.Namespace, err)
	}

	for _, assigned := range profile.AssignLabels {
		if assigned.Href == label.Href {
			e.logger.Debug().Str("namespace", profile.Namespace).Msg("Namespace label already assigned")
			return nil
		}
	}

	update := &pce.WorkloadProfile{
		AssignLabels: append(profile.AssignLabels, pce.Ref{Href: label.Href}),
	}
	if err := e.client.UpdateWorkloadProfile(ctx, clusterID, profile.ID(), update); err != nil {
		return fmt.Errorf("failed to assign namespace label %s: %w", profile.Namespace, err)
	}

	fmt.Printf("✓ Namespace label assigned to %s profile\n", profile.Namespace)
	return nil
}

// assignDefaultLabels puts the default profile in managed state with
// the lowest-impact enforcement mode, then applies the restriction
// label set.
func (e *Engine) assignDefaultLabels(ctx context.Context, clusterID string, profile *pce.WorkloadProfile) error {
	if !profile.IsManaged() {
		update := &pce.WorkloadProfile{
			Managed:         pce.Bool(true),
			EnforcementMode: types.EnforcementVisibilityOnly,
		}
		if err := e.client.UpdateWorkloadProfile(ctx, clusterID, profile.ID(), update); err != nil {
			return fmt.Errorf("failed to set default profile to managed: %w", err)
		}
		fmt.Println("✓ Default profile set to managed, visibility only")
	}

	all, err := e.client.ListLabels(ctx, "", "")
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}

	var assignments []pce.ProfileLabel
	for _, key := range restrictionKeys {
		var refs []pce.Ref
		for _, label := range all {
			if label.Key == key {
				refs = append(refs, pce.Ref{Href: label.Href})
				if !multiValueKey(key) {
					break
				}
			}
		}
		if len(refs) > 0 {
			assignments = append(assignments, pce.ProfileLabel{Key: key, Restriction: refs})
		}
	}

	if len(assignments) == 0 {
		e.logger.Debug().Msg("No restriction labels defined in the platform, skipping default profile")
		return nil
	}

	update := &pce.WorkloadProfile{
		Managed: pce.Bool(true),
		Labels:  assignments,
	}
	if err := e.client.UpdateWorkloadProfile(ctx, clusterID, profile.ID(), update); err != nil {
		return fmt.Errorf("failed to assign default labels: %w", err)
	}

	fmt.Println("✓ Default labels assigned to default workload profile")
	return nil
}

// PairingLabels ensures the cluster label and the derived env, loc and
// role labels exist, returning their refs in the form a pairing profile
// expects.
func (e *Engine) PairingLabels(ctx context.Context, clusterName string) ([]pce.Ref, error) {
	derived := e.conv.Derive(clusterName)

	wanted := []struct {
		key   string
		value string
	}{
		{types.LabelKeyCluster, clusterName},
		{types.LabelKeyEnv, derived.Environment},
		{types.LabelKeyLoc, derived.Location},
		{types.LabelKeyRole, derived.Role},
	}

	refs := make([]pce.Ref, 0, len(wanted))
	for _, w := range wanted {
		if w.value == "" {
			continue
		}
		label, err := e.client.EnsureLabel(ctx, w.key, w.value)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure %s label: %w", w.key, err)
		}
		refs = append(refs, pce.Ref{Href: label.Href})
	}
	return refs, nil
}

// Derive exposes the engine's naming convention decode.
func (e *Engine) Derive(clusterName string) Derived {
	return e.conv.Derive(clusterName)
}
