package pce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromHref(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"container cluster", "/orgs/1/container_clusters/f5bc2a49-5bf4-4c53-9a08-d157e0b1f316", "f5bc2a49-5bf4-4c53-9a08-d157e0b1f316"},
		{"pairing profile", "/orgs/1/pairing_profiles/22", "22"},
		{"trailing slash", "/orgs/1/labels/57/", "57"},
		{"empty", "", ""},
		{"no slashes", "42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IDFromHref(tt.href))
		})
	}
}

func TestEnsureLabelReturnsExisting(t *testing.T) {
	var created int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "env", r.URL.Query().Get("key"))
			json.NewEncoder(w).Encode([]Label{{Href: "/orgs/1/labels/9", Key: "env", Value: "Production"}})
		case http.MethodPost:
			created++
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Label{Href: "/orgs/1/labels/10", Key: "env", Value: "Production"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, "api_user", "secret", 0)
	label, err := client.EnsureLabel(context.Background(), "env", "Production")
	require.NoError(t, err)
	assert.Equal(t, "/orgs/1/labels/9", label.Href)
	assert.Equal(t, 0, created, "existing label should not be recreated")
}

func TestEnsureLabelCreatesMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode([]Label{})
		case http.MethodPost:
			var req Label
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "loc", req.Key)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Label{Href: "/orgs/1/labels/31", Key: req.Key, Value: req.Value})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, "api_user", "secret", 0)
	label, err := client.EnsureLabel(context.Background(), "loc", "Azure Central US")
	require.NoError(t, err)
	assert.Equal(t, "31", IDFromHref(label.Href))
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
		w.Write([]byte(`[{"token":"name_taken"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, "api_user", "secret", 0)
	_, err := client.CreateContainerCluster(context.Background(), "abcdevuse1", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotAcceptable, apiErr.Status)
	assert.Contains(t, apiErr.Body, "name_taken")
}

func TestRequestsUseBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api_1234", user)
		assert.Equal(t, "hunter2", pass)
		assert.Equal(t, "/api/v2/orgs/7/container_clusters", r.URL.Path)
		json.NewEncoder(w).Encode([]ContainerCluster{})
	}))
	defer server.Close()

	client := NewClient(server.URL, 7, "api_1234", "hunter2", 0)
	_, err := client.ListContainerClusters(context.Background(), "")
	require.NoError(t, err)
}

func TestGeneratePairingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/orgs/1/pairing_profiles/22/pairing_key", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"activation_code":"abc123xyz"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, "api_user", "secret", 0)
	code, err := client.GeneratePairingKey(context.Background(), "22")
	require.NoError(t, err)
	assert.Equal(t, "abc123xyz", code)
}

func TestGeneratePairingKeyMissingCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 1, "api_user", "secret", 0)
	_, err := client.GeneratePairingKey(context.Background(), "22")
	assert.ErrorContains(t, err, "missing activation code")
}
