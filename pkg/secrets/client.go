package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"github.com/seglab/pcectl/pkg/log"
	"github.com/seglab/pcectl/pkg/retry"
	"github.com/seglab/pcectl/pkg/types"
)

// Config holds everything the secrets client needs to log in and locate
// the credential bundles.
type Config struct {
	// Endpoints are tried in order; production passes primary then
	// secondary region.
	Endpoints []string
	Role      string
	LoginPath string
	// IdentityToken is the workload identity JWT exchanged for a
	// session token.
	IdentityToken string

	PCECredsPath       string
	ClusterSecretsPath string
	ADCredsPath        string
	AuthKeyPath        string

	Timeout time.Duration
	Retry   retry.Config
}

// Client talks to the secrets service. Session tokens are not tracked
// for expiry; every operation logs in fresh.
type Client struct {
	cfg    Config
	logger zerolog.Logger
}

// NewClient creates a secrets client. Login happens lazily on first
// use.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no secrets service endpoints configured")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "auth/jwt/login"
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.Config{Attempts: 5, Delay: 2 * time.Second}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		cfg:    cfg,
		logger: log.WithComponent("secrets"),
	}, nil
}

// login exchanges the identity token for a session token, trying each
// endpoint in order with a bounded retry per endpoint.
func (c *Client) login(ctx context.Context) (*api.Client, error) {
	var lastErr error
	for _, endpoint := range c.cfg.Endpoints {
		apiCfg := api.DefaultConfig()
		apiCfg.Address = endpoint
		apiCfg.Timeout = c.cfg.Timeout

		apiClient, err := api.NewClient(apiCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets client for %s: %w", endpoint, err)
		}

		err = retry.Do(ctx, c.cfg.Retry, func() error {
			secret, err := apiClient.Logical().WriteWithContext(ctx, c.cfg.LoginPath, map[string]interface{}{
				"jwt":  c.cfg.IdentityToken,
				"role": c.cfg.Role,
			})
			if err != nil {
				return err
			}
			if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
				return fmt.Errorf("login response missing client token")
			}
			apiClient.SetToken(secret.Auth.ClientToken)
			return nil
		})
		if err == nil {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Authenticated to secrets service")
			return apiClient, nil
		}

		lastErr = err
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Secrets service endpoint unreachable")
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &AuthError{
		Endpoints: c.cfg.Endpoints,
		Attempts:  c.cfg.Retry.Attempts,
		Err:       lastErr,
	}
}

// read fetches a secret and unwraps the KV v2 nested data envelope when
// present.
func (c *Client) read(ctx context.Context, path string) (map[string]interface{}, error) {
	apiClient, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	secret, err := apiClient.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, &NotFoundError{Path: path, Field: "data", Reason: "secret not present"}
	}

	if inner, ok := secret.Data["data"].(map[string]interface{}); ok {
		return inner, nil
	}
	return secret.Data, nil
}

// field extracts and cleans a string field of a secret. Returns "" when
// the field is absent or empty.
func field(data map[string]interface{}, name string) string {
	value, ok := data[name].(string)
	if !ok {
		return ""
	}
	return cleanupSecret(value)
}

// cleanupSecret strips stray quotes and surrounding whitespace that
// leak in from how values get pasted into the secrets service.
func cleanupSecret(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

// FetchPCECredentials returns the policy platform API user and key.
func (c *Client) FetchPCECredentials(ctx context.Context) (user, key string, err error) {
	data, err := c.read(ctx, c.cfg.PCECredsPath)
	if err != nil {
		return "", "", err
	}

	user = field(data, "api_user")
	key = field(data, "api_key")

	switch {
	case user == "" && key == "":
		return "", "", &NotFoundError{Path: c.cfg.PCECredsPath, Field: "api_user", Reason: "neither API user nor API key was retrieved"}
	case user == "":
		return "", "", &NotFoundError{Path: c.cfg.PCECredsPath, Field: "api_user", Reason: "API key was retrieved but API user is missing"}
	case key == "":
		return "", "", &NotFoundError{Path: c.cfg.PCECredsPath, Field: "api_key", Reason: "API user was retrieved but API key is missing"}
	}

	return user, key, nil
}

// clusterPath returns the secrets path for one cluster's identifiers.
func (c *Client) clusterPath(clusterName string) string {
	return strings.TrimSuffix(c.cfg.ClusterSecretsPath, "/") + "/" + clusterName
}

// FetchClusterSecrets returns the stored identifiers for a cluster, or
// a NotFoundError naming whichever fields are absent.
func (c *Client) FetchClusterSecrets(ctx context.Context, clusterName string) (*types.ClusterRecord, error) {
	path := c.clusterPath(clusterName)
	data, err := c.read(ctx, path)
	if err != nil {
		return nil, err
	}

	record := &types.ClusterRecord{
		Name:       clusterName,
		ID:         field(data, clusterName+"_container_cluster_id"),
		Token:      field(data, clusterName+"_container_cluster_token"),
		PairingKey: field(data, clusterName+"_pairing_key"),
	}

	var missing []string
	if record.ID == "" {
		missing = append(missing, "container_cluster_id")
	}
	if record.Token == "" {
		missing = append(missing, "container_cluster_token")
	}
	if record.PairingKey == "" {
		missing = append(missing, "pairing_key")
	}
	if len(missing) > 0 {
		return record, &NotFoundError{Path: path, Field: strings.Join(missing, ", "), Reason: "required cluster secrets missing"}
	}

	return record, nil
}

// StoreClusterSecrets writes a cluster's identifiers under cluster-name
// prefixed keys. Re-storing identical values succeeds.
func (c *Client) StoreClusterSecrets(ctx context.Context, record *types.ClusterRecord) error {
	apiClient, err := c.login(ctx)
	if err != nil {
		return err
	}

	path := c.clusterPath(record.Name)
	_, err = apiClient.Logical().WriteWithContext(ctx, path, record.SecretKeys())
	if err != nil {
		var respErr *api.ResponseError
		if errors.As(err, &respErr) {
			return &StoreError{
				Path:   path,
				Status: respErr.StatusCode,
				Body:   strings.Join(respErr.Errors, "; "),
			}
		}
		return &StoreError{Path: path, Body: err.Error()}
	}

	c.logger.Info().Str("cluster", record.Name).Msg("Stored cluster secrets")
	return nil
}

// FetchADCredentials returns directory credentials for registry access.
// When the secrets service has no AD bundle configured, the GH_USERNAME
// and GH_PASSWORD environment variables serve as a fallback.
func (c *Client) FetchADCredentials(ctx context.Context) (username, password string, err error) {
	if c.cfg.ADCredsPath != "" {
		data, readErr := c.read(ctx, c.cfg.ADCredsPath)
		if readErr == nil {
			username = field(data, "ad_username")
			password = field(data, "ad_password")
			switch {
			case username == "" && password == "":
				err = &NotFoundError{Path: c.cfg.ADCredsPath, Field: "ad_username", Reason: "neither username nor password was retrieved"}
			case username == "":
				err = &NotFoundError{Path: c.cfg.ADCredsPath, Field: "ad_username", Reason: "password was retrieved but username is missing"}
			case password == "":
				err = &NotFoundError{Path: c.cfg.ADCredsPath, Field: "ad_password", Reason: "username was retrieved but password is missing"}
			default:
				return username, password, nil
			}
		} else {
			err = readErr
		}
	}

	if user, pass := os.Getenv("GH_USERNAME"), os.Getenv("GH_PASSWORD"); user != "" && pass != "" {
		c.logger.Debug().Msg("Using registry credentials from environment")
		return user, pass, nil
	}

	if err == nil {
		err = &NotFoundError{Path: c.cfg.ADCredsPath, Field: "ad_username", Reason: "no credentials path configured and GH_USERNAME/GH_PASSWORD unset"}
	}
	return "", "", err
}

// FetchAuthKey returns the deployment platform auth key.
func (c *Client) FetchAuthKey(ctx context.Context) (string, error) {
	data, err := c.read(ctx, c.cfg.AuthKeyPath)
	if err != nil {
		return "", err
	}

	key := field(data, "key")
	if key == "" {
		return "", &NotFoundError{Path: c.cfg.AuthKeyPath, Field: "key"}
	}
	return key, nil
}
