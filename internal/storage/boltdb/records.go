package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// Get retrieves a record by kind and id.
func (s *Storage) Get(ctx context.Context, kind models.RecordKind, id string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	if !kind.Valid() {
		return nil, storage.ErrUnknownKind
	}

	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := kindBucket(tx, kind)
		if err != nil {
			return err
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		record = &models.Record{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

// Upsert stores or overwrites a record under its (kind, id).
func (s *Storage) Upsert(ctx context.Context, record *models.Record) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if !record.Kind.Valid() {
		return storage.ErrUnknownKind
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx, record)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// UpsertWithOutbox stores the record and enqueues the outbox item in a single
// bbolt transaction. Either both are durable or neither is.
func (s *Storage) UpsertWithOutbox(ctx context.Context, record *models.Record, item *models.OutboxItem) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if !record.Kind.Valid() || !item.Kind.Valid() {
		return storage.ErrUnknownKind
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := putRecord(tx, record); err != nil {
			return err
		}
		return putOutboxItem(tx, item)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// ScanKind returns all records of a kind.
func (s *Storage) ScanKind(ctx context.Context, kind models.RecordKind) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}
	if !kind.Valid() {
		return nil, storage.ErrUnknownKind
	}

	var records []*models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := kindBucket(tx, kind)
		if err != nil {
			return err
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record models.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan kind %s: %w", kind, err)
	}

	return records, nil
}

// Delete removes a record.
func (s *Storage) Delete(ctx context.Context, kind models.RecordKind, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if !kind.Valid() {
		return storage.ErrUnknownKind
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := kindBucket(tx, kind)
		if err != nil {
			return err
		}

		if bucket.Get([]byte(id)) == nil {
			return storage.ErrRecordNotFound
		}

		return bucket.Delete([]byte(id))
	})

	if err != nil {
		return err
	}

	return nil
}

// putRecord writes a record inside an open transaction.
func putRecord(tx *bbolt.Tx, record *models.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	bucket, err := kindBucket(tx, record.Kind)
	if err != nil {
		return err
	}

	if err := bucket.Put([]byte(record.ID), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}
