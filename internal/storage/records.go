package storage

import (
	"context"

	"github.com/opentill/tillsync/internal/models"
)

//go:generate moq -out records_mock.go . RecordStore

// RecordStore is the local durable store: one keyed table per record kind,
// the sole source of truth for reads. All mutation paths funnel through this
// contract; no other component retains authoritative copies.
//
// Upsert is idempotent by id. Timestamp ordering is NOT enforced here: the
// caller (the sync coordinator, via the conflict resolver) decides whether a
// remote record may overwrite the stored one.
type RecordStore interface {
	// Get retrieves a record by kind and id.
	// Returns ErrRecordNotFound if it doesn't exist.
	Get(ctx context.Context, kind models.RecordKind, id string) (*models.Record, error)

	// Upsert stores or overwrites a record under its (kind, id).
	Upsert(ctx context.Context, record *models.Record) error

	// UpsertWithOutbox stores the record and enqueues the outbox item in one
	// storage transaction, so a crash between the two can never leave a
	// record written but un-queued.
	UpsertWithOutbox(ctx context.Context, record *models.Record, item *models.OutboxItem) error

	// ScanKind returns all records of a kind.
	ScanKind(ctx context.Context, kind models.RecordKind) ([]*models.Record, error)

	// Delete removes a record. Returns ErrRecordNotFound if absent.
	Delete(ctx context.Context, kind models.RecordKind, id string) error
}

//go:generate moq -out meta_mock.go . MetaStore

// MetaStore persists small sync-engine metadata: the pull watermark and the
// stable device id.
type MetaStore interface {
	// SaveLastSyncAt saves the watermark (unix milli) of the last successful pull.
	SaveLastSyncAt(ctx context.Context, ts int64) error

	// GetLastSyncAt returns the pull watermark, 0 if no pull has completed yet.
	GetLastSyncAt(ctx context.Context) (int64, error)

	// DeviceID returns the stable device id, generating and persisting one on
	// first use.
	DeviceID(ctx context.Context) (string, error)
}
