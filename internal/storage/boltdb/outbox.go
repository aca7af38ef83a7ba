package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// Enqueue adds a write intent to the outbox.
func (s *Storage) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putOutboxItem(tx, item)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// ListPending returns pending items, oldest first.
func (s *Storage) ListPending(ctx context.Context) ([]*models.OutboxItem, error) {
	return s.listByStatus(models.OutboxPending)
}

// ListFailed returns error items, oldest first.
func (s *Storage) ListFailed(ctx context.Context) ([]*models.OutboxItem, error) {
	return s.listByStatus(models.OutboxError)
}

// MarkSynced removes an item after a confirmed remote ack.
func (s *Storage) MarkSynced(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return storage.ErrOutboxItemNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

// MarkFailed records a failed publish attempt. Once Attempts reaches the
// ceiling the item flips to error status and stops being retried
// automatically.
func (s *Storage) MarkFailed(ctx context.Context, id string, attemptAt int64, ceiling int) (*models.OutboxItem, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var updated *models.OutboxItem

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		if bucket == nil {
			return storage.ErrOutboxItemNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrOutboxItemNotFound
		}

		var item models.OutboxItem
		if err := json.Unmarshal(data, &item); err != nil {
			return fmt.Errorf("failed to unmarshal outbox item: %w", err)
		}

		item.Attempts++
		item.LastAttemptAt = attemptAt
		if item.Attempts >= ceiling {
			item.Status = models.OutboxError
		}

		out, err := json.Marshal(&item)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox item: %w", err)
		}
		if err := bucket.Put([]byte(id), out); err != nil {
			return fmt.Errorf("failed to save outbox item: %w", err)
		}

		updated = &item
		return nil
	})

	if err != nil {
		return nil, err
	}

	return updated, nil
}

// RetryFailed resets every error item back to pending with zero attempts.
func (s *Storage) RetryFailed(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	reset := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		if bucket == nil {
			return nil
		}

		// Collect first: mutating inside ForEach is not allowed.
		var failed []*models.OutboxItem
		err := bucket.ForEach(func(k, v []byte) error {
			var item models.OutboxItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal outbox item: %w", err)
			}
			if item.Status == models.OutboxError {
				failed = append(failed, &item)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, item := range failed {
			item.Status = models.OutboxPending
			item.Attempts = 0
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal outbox item: %w", err)
			}
			if err := bucket.Put([]byte(item.ID), data); err != nil {
				return fmt.Errorf("failed to save outbox item: %w", err)
			}
			reset++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return reset, nil
}

// CountPending returns the number of pending items.
func (s *Storage) CountPending(ctx context.Context) (int, error) {
	return s.countByStatus(models.OutboxPending)
}

// CountFailed returns the number of error items.
func (s *Storage) CountFailed(ctx context.Context) (int, error) {
	return s.countByStatus(models.OutboxError)
}

func (s *Storage) listByStatus(status models.OutboxStatus) ([]*models.OutboxItem, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var items []*models.OutboxItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutbox)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var item models.OutboxItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("failed to unmarshal outbox item: %w", err)
			}
			if !item.Status.Valid() {
				return fmt.Errorf("outbox item %s has unknown status %q", item.ID, item.Status)
			}
			if item.Status == status {
				items = append(items, &item)
			}
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list outbox items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt < items[j].CreatedAt
	})

	return items, nil
}

func (s *Storage) countByStatus(status models.OutboxStatus) (int, error) {
	items, err := s.listByStatus(status)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// putOutboxItem writes an outbox item inside an open transaction.
func putOutboxItem(tx *bbolt.Tx, item *models.OutboxItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox item: %w", err)
	}

	bucket := tx.Bucket(bucketOutbox)
	if bucket == nil {
		return fmt.Errorf("outbox bucket missing")
	}

	if err := bucket.Put([]byte(item.ID), data); err != nil {
		return fmt.Errorf("failed to save outbox item: %w", err)
	}

	return nil
}
