package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketPending = []byte("pending")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPending); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPending, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put stores p, assigning an ID and creation time when unset.
func (s *BoltStore) Put(ctx context.Context, p *PendingTransaction) error {
	prepare(p)
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode pending transaction: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).Put([]byte(p.ID), data)
	})
}

// Get returns the record with id.
func (s *BoltStore) Get(ctx context.Context, id string) (*PendingTransaction, error) {
	var p PendingTransaction
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPending).Get([]byte(id))
		if data == nil {
			return &NotFoundError{ID: id}
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes the record with id.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		if b.Get([]byte(id)) == nil {
			return &NotFoundError{ID: id}
		}
		return b.Delete([]byte(id))
	})
}

// List returns all records, oldest first.
func (s *BoltStore) List(ctx context.Context) ([]*PendingTransaction, error) {
	var out []*PendingTransaction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var p PendingTransaction
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("failed to decode pending transaction %s: %w", k, err)
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByAge(out)
	return out, nil
}

func prepare(p *PendingTransaction) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
}

func sortByAge(ps []*PendingTransaction) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

var _ Store = (*BoltStore)(nil)
