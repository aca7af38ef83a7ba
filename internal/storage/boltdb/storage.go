// Package boltdb implements the storage contracts on a single bbolt file.
// Records live in one bucket per kind under a parent bucket; the outbox, key
// metadata, and engine metadata each get their own bucket. Values are
// JSON-serialized models.
package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opentill/tillsync/internal/models"
)

var (
	// BoltDB bucket names
	bucketRecords = []byte("records")
	bucketOutbox  = []byte("outbox")
	bucketKeys    = []byte("keys")
	bucketMeta    = []byte("meta")
)

// Storage implements RecordStore, OutboxStore, KeyStore and MetaStore on a
// single bbolt database so that record writes and outbox enqueues can share
// one transaction.
type Storage struct {
	db *bbolt.DB
}

// New opens (or creates) the bbolt database at dbPath and initializes the
// bucket layout.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		records, err := tx.CreateBucketIfNotExists(bucketRecords)
		if err != nil {
			return fmt.Errorf("failed to create records bucket: %w", err)
		}

		// One sub-bucket per record kind, created up front so scans never
		// have to distinguish "missing bucket" from "empty kind".
		for _, kind := range models.Kinds() {
			if _, err := records.CreateBucketIfNotExists([]byte(kind.String())); err != nil {
				return fmt.Errorf("failed to create bucket for kind %s: %w", kind, err)
			}
		}

		for _, name := range [][]byte{bucketOutbox, bucketKeys, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		return nil
	})
}

// kindBucket returns the sub-bucket holding records of the given kind.
func kindBucket(tx *bbolt.Tx, kind models.RecordKind) (*bbolt.Bucket, error) {
	records := tx.Bucket(bucketRecords)
	if records == nil {
		return nil, fmt.Errorf("records bucket missing")
	}
	bucket := records.Bucket([]byte(kind.String()))
	if bucket == nil {
		return nil, fmt.Errorf("bucket for kind %s missing", kind)
	}
	return bucket, nil
}
