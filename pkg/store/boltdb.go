package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/seglab/pcectl/pkg/types"
)

var bucketClusters = []byte("clusters")

// BoltStore is a local cache of provisioned cluster records, keyed by
// cluster name. The secrets service stays the durable copy; the cache
// only speeds up discovery and survives secrets-service outages.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the cache database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "pcectl.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketClusters); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketClusters, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveCluster writes a cluster record, stamping UpdatedAt (and
// CreatedAt on first write).
func (s *BoltStore) SaveCluster(record *types.ClusterRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusters)

		now := time.Now().UTC()
		if existing := b.Get([]byte(record.Name)); existing == nil {
			record.CreatedAt = now
		} else if record.CreatedAt.IsZero() {
			var prev types.ClusterRecord
			if err := json.Unmarshal(existing, &prev); err == nil {
				record.CreatedAt = prev.CreatedAt
			}
		}
		record.UpdatedAt = now

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.Name), data)
	})
}

// GetCluster returns the cached record for a cluster name, or nil when
// the cache has none.
func (s *BoltStore) GetCluster(name string) (*types.ClusterRecord, error) {
	var record *types.ClusterRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusters)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		record = &types.ClusterRecord{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListClusters returns every cached cluster record.
func (s *BoltStore) ListClusters() ([]*types.ClusterRecord, error) {
	var records []*types.ClusterRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusters)
		return b.ForEach(func(k, v []byte) error {
			var record types.ClusterRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteCluster removes a cached record. Deleting a missing record is
// not an error.
func (s *BoltStore) DeleteCluster(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).Delete([]byte(name))
	})
}
