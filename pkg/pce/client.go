package pce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/seglab/pcectl/pkg/log"
)

const defaultTimeout = 15 * time.Second

// APIError reports a non-success response from the policy platform.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client is a policy platform API client. All requests are scoped to a
// single organization and authenticated with the API key credentials.
type Client struct {
	baseURL    string
	orgID      int
	apiUser    string
	apiSecret  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a policy platform client. baseURL is the scheme and
// host, e.g. https://pce.example.com:8443.
func NewClient(baseURL string, orgID int, apiUser, apiSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   baseURL,
		orgID:     orgID,
		apiUser:   apiUser,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("pce"),
	}
}

// orgPath prefixes a resource path with the versioned org scope.
func (c *Client) orgPath(resource string) string {
	return fmt.Sprintf("/api/v2/orgs/%d/%s", c.orgID, resource)
}

// do issues a request and decodes the JSON response into out (which may
// be nil for responses whose body the caller does not need).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.apiUser, c.apiSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Platform API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(respBody),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// ListLabels returns labels, optionally filtered by key and value.
func (c *Client) ListLabels(ctx context.Context, key, value string) ([]Label, error) {
	query := url.Values{}
	if key != "" {
		query.Set("key", key)
	}
	if value != "" {
		query.Set("value", value)
	}

	var labels []Label
	if err := c.do(ctx, http.MethodGet, c.orgPath("labels"), query, nil, &labels); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// CreateLabel creates a label with the given key and value.
func (c *Client) CreateLabel(ctx context.Context, key, value string) (*Label, error) {
	var created Label
	req := Label{Key: key, Value: value}
	if err := c.do(ctx, http.MethodPost, c.orgPath("labels"), nil, &req, &created); err != nil {
		return nil, fmt.Errorf("failed to create label %s=%s: %w", key, value, err)
	}
	return &created, nil
}

// EnsureLabel returns the label with the given key and value, creating
// it when it does not exist yet.
func (c *Client) EnsureLabel(ctx context.Context, key, value string) (*Label, error) {
	labels, err := c.ListLabels(ctx, key, value)
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if labels[i].Key == key && labels[i].Value == value {
			return &labels[i], nil
		}
	}
	return c.CreateLabel(ctx, key, value)
}

// ListContainerClusters returns container clusters, optionally filtered
// by name.
func (c *Client) ListContainerClusters(ctx context.Context, name string) ([]ContainerCluster, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}

	var clusters []ContainerCluster
	if err := c.do(ctx, http.MethodGet, c.orgPath("container_clusters"), query, nil, &clusters); err != nil {
		return nil, fmt.Errorf("failed to list container clusters: %w", err)
	}
	return clusters, nil
}

// CreateContainerCluster registers a container cluster. The returned
// object carries the one-time cluster token.
func (c *Client) CreateContainerCluster(ctx context.Context, name, description string) (*ContainerCluster, error) {
	var created ContainerCluster
	req := ContainerCluster{Name: name, Description: description}
	if err := c.do(ctx, http.MethodPost, c.orgPath("container_clusters"), nil, &req, &created); err != nil {
		return nil, fmt.Errorf("failed to create container cluster %s: %w", name, err)
	}
	return &created, nil
}

// ListPairingProfiles returns pairing profiles, optionally filtered by
// name.
func (c *Client) ListPairingProfiles(ctx context.Context, name string) ([]PairingProfile, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}

	var profiles []PairingProfile
	if err := c.do(ctx, http.MethodGet, c.orgPath("pairing_profiles"), query, nil, &profiles); err != nil {
		return nil, fmt.Errorf("failed to list pairing profiles: %w", err)
	}
	return profiles, nil
}

// CreatePairingProfile creates a pairing profile.
func (c *Client) CreatePairingProfile(ctx context.Context, profile *PairingProfile) (*PairingProfile, error) {
	var created PairingProfile
	if err := c.do(ctx, http.MethodPost, c.orgPath("pairing_profiles"), nil, profile, &created); err != nil {
		return nil, fmt.Errorf("failed to create pairing profile %s: %w", profile.Name, err)
	}
	return &created, nil
}

// GeneratePairingKey generates an activation code for the profile.
func (c *Client) GeneratePairingKey(ctx context.Context, profileID string) (string, error) {
	var resp struct {
		ActivationCode string `json:"activation_code"`
	}
	path := c.orgPath("pairing_profiles/" + profileID + "/pairing_key")
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, &resp); err != nil {
		return "", fmt.Errorf("failed to generate pairing key: %w", err)
	}
	if resp.ActivationCode == "" {
		return "", fmt.Errorf("pairing key response missing activation code")
	}
	return resp.ActivationCode, nil
}

// ListWorkloadProfiles returns the container workload profiles of a
// cluster.
func (c *Client) ListWorkloadProfiles(ctx context.Context, clusterID string) ([]WorkloadProfile, error) {
	var profiles []WorkloadProfile
	path := c.orgPath("container_clusters/" + clusterID + "/container_workload_profiles")
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &profiles); err != nil {
		return nil, fmt.Errorf("failed to list workload profiles: %w", err)
	}
	return profiles, nil
}

// UpdateWorkloadProfile applies a partial update to a workload profile.
func (c *Client) UpdateWorkloadProfile(ctx context.Context, clusterID, profileID string, update *WorkloadProfile) error {
	path := c.orgPath("container_clusters/" + clusterID + "/container_workload_profiles/" + profileID)
	if err := c.do(ctx, http.MethodPut, path, nil, update, nil); err != nil {
		return fmt.Errorf("failed to update workload profile: %w", err)
	}
	return nil
}
