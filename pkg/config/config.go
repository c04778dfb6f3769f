package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seglab/pcectl/pkg/labels"
)

// ConfigError reports a required configuration value that is missing
// or invalid.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("required configuration value missing: %s", e.Key)
}

// Environments accepted by the secrets service configuration.
var validEnvironments = map[string]bool{
	"dev":  true,
	"test": true,
	"stg":  true,
	"prod": true,
}

// VaultConfig holds secrets-service endpoints and paths. Addresses are
// keyed by environment; production uses a primary and a secondary
// region endpoint instead.
type VaultConfig struct {
	Role               string            `mapstructure:"role"`
	LoginPath          string            `mapstructure:"login_path"`
	KVVersion          int               `mapstructure:"kv_version"`
	Addresses          map[string]string `mapstructure:"addresses"`
	ProdPrimary        string            `mapstructure:"prod_primary"`
	ProdSecondary      string            `mapstructure:"prod_secondary"`
	PCECredsPath       string            `mapstructure:"pce_creds_path"`
	ClusterSecretsPath string            `mapstructure:"cluster_secrets_path"`
	ADCredsPath        string            `mapstructure:"ad_creds_path"`
	AuthKeyPath        string            `mapstructure:"auth_key_path"`
}

// PCEConfig holds the policy platform endpoint.
type PCEConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	OrgID   int           `mapstructure:"org_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config is the full pcectl configuration, assembled from the optional
// YAML config file and the PCECTL/SA_TOKEN/ENVIRONMENT environment
// variables.
type Config struct {
	Environment string            `mapstructure:"environment"`
	SAToken     string            `mapstructure:"sa_token"`
	Vault       VaultConfig       `mapstructure:"vault"`
	PCE         PCEConfig         `mapstructure:"pce"`
	Convention  labels.Convention `mapstructure:"convention"`
	DataDir     string            `mapstructure:"data_dir"`
}

// Load reads configuration from the given file path (optional; empty
// means search the default locations) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pcectl")
		v.AddConfigPath("/etc/pcectl/")
		v.AddConfigPath("$HOME/.pcectl")
		v.AddConfigPath(".")
	}

	// Defaults
	v.SetDefault("vault.login_path", "auth/jwt/login")
	v.SetDefault("vault.kv_version", 1)
	v.SetDefault("pce.timeout", 15*time.Second)
	v.SetDefault("data_dir", "$HOME/.pcectl")

	// SA_TOKEN and ENVIRONMENT keep their historical names; everything
	// else can be overridden with a PCECTL_ prefix.
	v.SetEnvPrefix("PCECTL")
	v.AutomaticEnv()
	_ = v.BindEnv("sa_token", "SA_TOKEN")
	_ = v.BindEnv("environment", "ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		// Missing config in the default search path is fine; an
		// explicitly named file must exist, and a malformed file is
		// always an error.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{Convention: labels.DefaultConvention()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.HasPrefix(cfg.DataDir, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, strings.TrimPrefix(cfg.DataDir, "$HOME"))
		}
	}

	return cfg, nil
}

// Validate checks that everything a provisioning run needs is present.
func (c *Config) Validate() error {
	if c.SAToken == "" {
		return &ConfigError{Key: "SA_TOKEN"}
	}
	if c.Environment == "" {
		return &ConfigError{Key: "ENVIRONMENT"}
	}
	if !validEnvironments[c.Environment] {
		return &ConfigError{Key: "ENVIRONMENT", Reason: fmt.Sprintf("invalid environment %q, allowed: dev, test, stg, prod", c.Environment)}
	}

	if c.Environment == "prod" {
		if c.Vault.ProdPrimary == "" {
			return &ConfigError{Key: "vault.prod_primary"}
		}
	} else if c.Vault.Addresses[c.Environment] == "" {
		return &ConfigError{Key: "vault.addresses." + c.Environment}
	}

	if c.Vault.Role == "" {
		return &ConfigError{Key: "vault.role"}
	}
	if c.PCE.BaseURL == "" {
		return &ConfigError{Key: "pce.base_url"}
	}
	if c.PCE.OrgID == 0 {
		return &ConfigError{Key: "pce.org_id"}
	}

	return nil
}

// VaultEndpoints returns the ordered list of secrets-service addresses
// to try for the configured environment. Production tries the primary
// region first, then the secondary.
func (c *Config) VaultEndpoints() []string {
	if c.Environment == "prod" {
		endpoints := []string{c.Vault.ProdPrimary}
		if c.Vault.ProdSecondary != "" {
			endpoints = append(endpoints, c.Vault.ProdSecondary)
		}
		return endpoints
	}

	if addr := c.Vault.Addresses[c.Environment]; addr != "" {
		return []string{addr}
	}
	return nil
}
