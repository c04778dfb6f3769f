package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seglab/pcectl/pkg/types"
)

// fallbackSecrets mirrors the layout operators expect when recovering a
// cluster's identifiers by hand.
type fallbackSecrets struct {
	ContainerClusterToken string `json:"container_cluster_token"`
	ContainerClusterID    string `json:"container_cluster_id"`
	PairingKey            string `json:"pairing_key"`
}

// FallbackPath returns the local JSON file a cluster's secrets are
// mirrored to.
func FallbackPath(dir, clusterName string) string {
	return filepath.Join(dir, fmt.Sprintf("pce_%s_secrets.json", clusterName))
}

// WriteFallbackFile mirrors a cluster's secrets to a local JSON file so
// a failed secrets-service write does not strand the one-time cluster
// token.
func WriteFallbackFile(dir string, record *types.ClusterRecord) (string, error) {
	path := FallbackPath(dir, record.Name)

	data, err := json.MarshalIndent(fallbackSecrets{
		ContainerClusterToken: record.Token,
		ContainerClusterID:    record.ID,
		PairingKey:            record.PairingKey,
	}, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode secrets: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write secrets file: %w", err)
	}
	return path, nil
}

// ReadFallbackFile loads a previously mirrored secrets file into a
// cluster record. Returns nil when no file exists.
func ReadFallbackFile(dir, clusterName string) (*types.ClusterRecord, error) {
	path := FallbackPath(dir, clusterName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	var secrets fallbackSecrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to decode secrets file %s: %w", path, err)
	}

	return &types.ClusterRecord{
		Name:       clusterName,
		ID:         secrets.ContainerClusterID,
		Token:      secrets.ContainerClusterToken,
		PairingKey: secrets.PairingKey,
	}, nil
}
