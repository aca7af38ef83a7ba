package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// SaveKey stores or updates key metadata. Key material never reaches this
// store.
func (s *Storage) SaveKey(ctx context.Context, meta *models.KeyMetadata) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal key metadata: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKeys)
		if bucket == nil {
			return fmt.Errorf("keys bucket missing")
		}
		return bucket.Put([]byte(meta.ID), data)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetKey retrieves key metadata by id.
func (s *Storage) GetKey(ctx context.Context, id string) (*models.KeyMetadata, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var meta *models.KeyMetadata

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKeys)
		if bucket == nil {
			return storage.ErrKeyNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrKeyNotFound
		}

		meta = &models.KeyMetadata{}
		if err := json.Unmarshal(data, meta); err != nil {
			return fmt.Errorf("failed to unmarshal key metadata: %w", err)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return meta, nil
}

// ListKeys returns metadata for all known keys.
func (s *Storage) ListKeys(ctx context.Context) ([]*models.KeyMetadata, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var metas []*models.KeyMetadata

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketKeys)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var meta models.KeyMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("failed to unmarshal key metadata: %w", err)
			}
			metas = append(metas, &meta)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return metas, nil
}

// ActiveKey returns the active key metadata for a type.
func (s *Storage) ActiveKey(ctx context.Context, keyType models.KeyType) (*models.KeyMetadata, error) {
	metas, err := s.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	for _, meta := range metas {
		if meta.Type == keyType && meta.IsActive {
			return meta, nil
		}
	}

	return nil, storage.ErrKeyNotFound
}
