package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seglab/pcectl/pkg/types"
)

func testStore(t *testing.T) *BoltStore {
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetCluster(t *testing.T) {
	s := testStore(t)

	record := &types.ClusterRecord{
		Name:             "akdevps01",
		ID:               "cc-id-1",
		Token:            "cc-token-1",
		PairingProfileID: "22",
		PairingKey:       "pk-1",
	}
	require.NoError(t, s.SaveCluster(record))
	assert.False(t, record.CreatedAt.IsZero())

	got, err := s.GetCluster("akdevps01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cc-id-1", got.ID)
	assert.Equal(t, "pk-1", got.PairingKey)
	assert.Equal(t, record.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestGetClusterMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.GetCluster("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveClusterPreservesCreatedAt(t *testing.T) {
	s := testStore(t)

	first := &types.ClusterRecord{Name: "akdevps01", ID: "cc-id-1"}
	require.NoError(t, s.SaveCluster(first))

	update := &types.ClusterRecord{Name: "akdevps01", ID: "cc-id-1", PairingKey: "pk-1"}
	require.NoError(t, s.SaveCluster(update))

	got, err := s.GetCluster("akdevps01")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix())
	assert.Equal(t, "pk-1", got.PairingKey)
}

func TestListAndDeleteClusters(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.SaveCluster(&types.ClusterRecord{Name: "a1"}))
	require.NoError(t, s.SaveCluster(&types.ClusterRecord{Name: "b2"}))

	records, err := s.ListClusters()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, s.DeleteCluster("a1"))
	require.NoError(t, s.DeleteCluster("a1"), "deleting a missing record is not an error")

	records, err = s.ListClusters()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFallbackFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	record := &types.ClusterRecord{
		Name:       "akdevps01",
		ID:         "cc-id-1",
		Token:      "cc-token-1",
		PairingKey: "pk-1",
	}
	path, err := WriteFallbackFile(dir, record)
	require.NoError(t, err)
	assert.FileExists(t, path)

	got, err := ReadFallbackFile(dir, "akdevps01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Token, got.Token)
	assert.Equal(t, record.PairingKey, got.PairingKey)
}

func TestReadFallbackFileMissing(t *testing.T) {
	got, err := ReadFallbackFile(t.TempDir(), "akdevps01")
	require.NoError(t, err)
	assert.Nil(t, got)
}
