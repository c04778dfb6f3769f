package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "pcectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `
vault:
  role: pipeline-role
  addresses:
    dev: https://vault-dev.example.com
    test: https://vault-test.example.com
  prod_primary: https://vault-stl.example.com
  prod_secondary: https://vault-phx.example.com
  pce_creds_path: secret/pce/creds
  cluster_secrets_path: secret/clusters
pce:
  base_url: https://pce.example.com:8443
  org_id: 7
`

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("SA_TOKEN", "jwt-token")
	t.Setenv("ENVIRONMENT", "dev")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "jwt-token", cfg.SAToken)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "pipeline-role", cfg.Vault.Role)
	assert.Equal(t, 7, cfg.PCE.OrgID)
	assert.Equal(t, "auth/jwt/login", cfg.Vault.LoginPath, "default login path")
}

func TestValidateMissingToken(t *testing.T) {
	t.Setenv("SA_TOKEN", "")
	t.Setenv("ENVIRONMENT", "dev")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "SA_TOKEN", cfgErr.Key)
}

func TestValidateInvalidEnvironment(t *testing.T) {
	t.Setenv("SA_TOKEN", "jwt-token")
	t.Setenv("ENVIRONMENT", "staging")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ENVIRONMENT", cfgErr.Key)
	assert.Contains(t, cfgErr.Error(), "staging")
}

func TestVaultEndpointsPerEnvironment(t *testing.T) {
	t.Setenv("SA_TOKEN", "jwt-token")
	t.Setenv("ENVIRONMENT", "dev")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://vault-dev.example.com"}, cfg.VaultEndpoints())

	cfg.Environment = "prod"
	assert.Equal(t, []string{
		"https://vault-stl.example.com",
		"https://vault-phx.example.com",
	}, cfg.VaultEndpoints(), "production tries primary then secondary")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConventionOverrideFromConfig(t *testing.T) {
	t.Setenv("SA_TOKEN", "jwt-token")
	t.Setenv("ENVIRONMENT", "dev")

	cfg, err := Load(writeConfig(t, validConfig+`
convention:
  env_start: 3
  env_end: 6
  env_codes:
    dev: Development
  env_fallback_pos: 6
  loc_pos: 7
  loc_codes:
    s: Azure South Central US
  loc_default: Azure Central US
  workload_default: general
  profile_roles:
    - Container
`))
	require.NoError(t, err)

	d := cfg.Convention.Derive("abcdevuse1")
	assert.Equal(t, "Development", d.Environment)
	assert.Equal(t, "Azure South Central US", d.Location)
}
