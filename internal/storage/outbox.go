package storage

import (
	"context"

	"github.com/opentill/tillsync/internal/models"
)

//go:generate moq -out outbox_mock.go . OutboxStore

// OutboxStore is the durable pending-sync queue. Items are enqueued together
// with the record write that produced them (see RecordStore.UpsertWithOutbox)
// and removed only on a confirmed remote ack. A failed item is never deleted:
// it is retried until it succeeds, exceeds the ceiling, or is manually
// cleared.
//
// The outbox is owned exclusively by the sync coordinator.
type OutboxStore interface {
	// Enqueue adds a write intent to the queue.
	Enqueue(ctx context.Context, item *models.OutboxItem) error

	// ListPending returns all items with status pending, oldest first.
	ListPending(ctx context.Context) ([]*models.OutboxItem, error)

	// ListFailed returns all items with status error, oldest first.
	ListFailed(ctx context.Context) ([]*models.OutboxItem, error)

	// MarkSynced removes an item after its publish was acked.
	// Returns ErrOutboxItemNotFound if absent.
	MarkSynced(ctx context.Context, id string) error

	// MarkFailed records a failed publish attempt: increments Attempts, sets
	// LastAttemptAt, and flips the status to error once Attempts reaches the
	// ceiling. Returns the updated item.
	MarkFailed(ctx context.Context, id string, attemptAt int64, ceiling int) (*models.OutboxItem, error)

	// RetryFailed resets every error item back to pending with zero attempts.
	// Returns the number of items reset.
	RetryFailed(ctx context.Context) (int, error)

	// CountPending returns the number of pending items.
	CountPending(ctx context.Context) (int, error)

	// CountFailed returns the number of error items.
	CountFailed(ctx context.Context) (int, error)
}
