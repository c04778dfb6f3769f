package types

import (
	"time"
)

// ClusterRecord holds the identifiers a cluster accumulates while it is
// provisioned in the policy platform. The platform id, once assigned,
// never changes; the pairing key can only be recovered from the secrets
// store after generation.
type ClusterRecord struct {
	Name             string    `json:"name"`
	ID               string    `json:"container_cluster_id"`
	Token            string    `json:"container_cluster_token"`
	PairingProfileID string    `json:"pairing_profile_id,omitempty"`
	PairingKey       string    `json:"pairing_key"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Complete reports whether the record carries everything the agent
// install needs.
func (r *ClusterRecord) Complete() bool {
	return r.ID != "" && r.Token != "" && r.PairingKey != ""
}

// SecretKeys returns the record's fields under the cluster-name
// prefixed key names the secrets service stores them as.
func (r *ClusterRecord) SecretKeys() map[string]interface{} {
	return map[string]interface{}{
		r.Name + "_container_cluster_id":    r.ID,
		r.Name + "_container_cluster_token": r.Token,
		r.Name + "_pairing_key":             r.PairingKey,
	}
}

// Label keys understood by the policy platform. Labels are globally
// unique by (key, value) and referenced by href thereafter.
const (
	LabelKeyCluster     = "cluster"
	LabelKeyNamespace   = "namespace"
	LabelKeyEnv         = "env"
	LabelKeyLoc         = "loc"
	LabelKeyRole        = "role"
	LabelKeyApp         = "app"
	LabelKeyData        = "data"
	LabelKeyKubeAPI     = "kubeapi"
	LabelKeyMetadataAPI = "metadataapi"
	LabelKeyRiskScore   = "riskscore"
)

// Environment captures the env label values derived from cluster
// naming conventions.
const (
	EnvDevelopment = "Development"
	EnvClone       = "Clone"
	EnvProduction  = "Production"
)

// Workload profile enforcement modes.
const (
	EnforcementVisibilityOnly = "visibility_only"
)
