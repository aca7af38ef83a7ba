package boltdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/opentill/tillsync/internal/storage"
)

var (
	keyLastSyncAt = []byte("last_sync_at")
	keyDeviceID   = []byte("device_id")
)

// SaveLastSyncAt saves the watermark of the last successful pull.
func (s *Storage) SaveLastSyncAt(ctx context.Context, ts int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return fmt.Errorf("meta bucket missing")
		}
		return bucket.Put(keyLastSyncAt, []byte(strconv.FormatInt(ts, 10)))
	})
}

// GetLastSyncAt returns the pull watermark, 0 if no pull has completed yet.
func (s *Storage) GetLastSyncAt(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var ts int64

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(keyLastSyncAt)
		if data == nil {
			return nil
		}

		parsed, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse last sync timestamp: %w", err)
		}
		ts = parsed
		return nil
	})

	if err != nil {
		return 0, err
	}

	return ts, nil
}

// DeviceID returns the stable device id, generating one on first use.
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", storage.ErrStorageClosed
	}

	var id string

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return fmt.Errorf("meta bucket missing")
		}

		if data := bucket.Get(keyDeviceID); data != nil {
			id = string(data)
			return nil
		}

		id = uuid.New().String()
		return bucket.Put(keyDeviceID, []byte(id))
	})

	if err != nil {
		return "", err
	}

	return id, nil
}
