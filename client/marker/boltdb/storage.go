package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/layer-3/dropgate/client/marker"
	"go.etcd.io/bbolt"
)

var bucketMarkers = []byte("markers")

// Storage persists verification markers in a BoltDB file.
// One file per client session gives the tab-scoped behaviour.
type Storage struct {
	db *bbolt.DB
}

var _ marker.Store = (*Storage)(nil)

// New opens or creates the BoltDB file at dbPath
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMarkers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create markers bucket: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database file
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) Get(ctx context.Context, address string) (*marker.Marker, error) {
	var m *marker.Marker

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMarkers).Get([]byte(marker.Key(address)))
		if data == nil {
			return marker.ErrNotFound
		}

		m = &marker.Marker{}
		if err := json.Unmarshal(data, m); err != nil {
			return fmt.Errorf("failed to unmarshal marker: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (s *Storage) Put(ctx context.Context, m *marker.Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal marker: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMarkers).Put([]byte(marker.Key(m.Address)), data); err != nil {
			return fmt.Errorf("failed to save marker: %w", err)
		}
		return nil
	})
}

func (s *Storage) Delete(ctx context.Context, address string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMarkers).Delete([]byte(marker.Key(address))); err != nil {
			return fmt.Errorf("failed to delete marker: %w", err)
		}
		return nil
	})
}
