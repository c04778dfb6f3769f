package main

import (
	"context"
	"fmt"
	"os"

	"github.com/seglab/pcectl/pkg/config"
	"github.com/seglab/pcectl/pkg/labels"
	"github.com/seglab/pcectl/pkg/log"
	"github.com/seglab/pcectl/pkg/pce"
	"github.com/seglab/pcectl/pkg/provision"
	"github.com/seglab/pcectl/pkg/secrets"
	"github.com/seglab/pcectl/pkg/store"
	"github.com/seglab/pcectl/pkg/types"
)

func newSecretsClient(cfg *config.Config) (*secrets.Client, error) {
	return secrets.NewClient(secrets.Config{
		Endpoints:          cfg.VaultEndpoints(),
		Role:               cfg.Vault.Role,
		LoginPath:          cfg.Vault.LoginPath,
		IdentityToken:      cfg.SAToken,
		PCECredsPath:       cfg.Vault.PCECredsPath,
		ClusterSecretsPath: cfg.Vault.ClusterSecretsPath,
		ADCredsPath:        cfg.Vault.ADCredsPath,
		AuthKeyPath:        cfg.Vault.AuthKeyPath,
	})
}

// newPlatformClient fetches platform credentials and builds the API
// client.
func newPlatformClient(ctx context.Context, cfg *config.Config, sc *secrets.Client) (*pce.Client, error) {
	user, key, err := sc.FetchPCECredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve platform credentials: %w", err)
	}
	return pce.NewClient(cfg.PCE.BaseURL, cfg.PCE.OrgID, user, key, cfg.PCE.Timeout), nil
}

// newReconciler wires the reconciler with the local cache and fallback
// file writer. The cache is best effort; a broken local database only
// costs the tertiary discovery source.
func newReconciler(cfg *config.Config, platform *pce.Client, sc *secrets.Client, engine *labels.Engine) (*provision.Reconciler, func()) {
	var cache provision.LocalCache
	closeFn := func() {}

	boltStore, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		log.Logger.Warn().Err(err).Str("data_dir", cfg.DataDir).Msg("Local cache unavailable")
	} else {
		cache = boltStore
		closeFn = func() { boltStore.Close() }
	}

	fallback := func(record *types.ClusterRecord) (string, error) {
		return store.WriteFallbackFile(os.TempDir(), record)
	}

	return provision.NewReconciler(platform, sc, engine, cache, fallback), closeFn
}
