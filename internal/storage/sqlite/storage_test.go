package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func testRecord(kind models.RecordKind, id string, updatedAt int64) *models.Record {
	return &models.Record{
		ID:        id,
		Kind:      kind,
		UpdatedAt: updatedAt,
		Data:      []byte(`{"field":"value"}`),
	}
}

func TestSQLite_UpsertGetDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := testRecord(models.KindPromotion, "promo-1", 100)
	require.NoError(t, s.Upsert(ctx, record))

	got, err := s.Get(ctx, models.KindPromotion, "promo-1")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Upsert is idempotent by id.
	record.UpdatedAt = 200
	record.Synced = true
	record.RemoteID = "ev-1"
	require.NoError(t, s.Upsert(ctx, record))

	got, err = s.Get(ctx, models.KindPromotion, "promo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.UpdatedAt)
	assert.True(t, got.Synced)
	assert.Equal(t, "ev-1", got.RemoteID)

	require.NoError(t, s.Delete(ctx, models.KindPromotion, "promo-1"))
	_, err = s.Get(ctx, models.KindPromotion, "promo-1")
	require.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestSQLite_ScanKind(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord(models.KindAuditLog, "a1", 1)))
	require.NoError(t, s.Upsert(ctx, testRecord(models.KindAuditLog, "a2", 2)))

	records, err := s.ScanKind(ctx, models.KindAuditLog)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	empty, err := s.ScanKind(ctx, models.KindHelpArticle)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_UpsertWithOutbox_Atomic(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := testRecord(models.KindAccount, "acc-1", 10)
	item := &models.OutboxItem{
		ID:       "item-1",
		RecordID: "acc-1",
		Kind:     models.KindAccount,
		Payload:  []byte(`{"envelope":true}`),
		Status:   models.OutboxPending,
	}

	require.NoError(t, s.UpsertWithOutbox(ctx, record, item))

	_, err := s.Get(ctx, models.KindAccount, "acc-1")
	require.NoError(t, err)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "item-1", pending[0].ID)
}

func TestSQLite_OutboxLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	item := &models.OutboxItem{
		ID:        "item-1",
		RecordID:  "rec-1",
		Kind:      models.KindCustomer,
		Payload:   []byte(`{}`),
		UpdatedAt: 42,
		Status:    models.OutboxPending,
		CreatedAt: 1,
	}
	require.NoError(t, s.Enqueue(ctx, item))

	// Three failures at ceiling 3 flip the item to error.
	for i := 0; i < 3; i++ {
		updated, err := s.MarkFailed(ctx, "item-1", int64(100+i), 3)
		require.NoError(t, err)
		assert.Equal(t, i+1, updated.Attempts)
	}

	failed, err := s.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.OutboxError, failed[0].Status)

	failedCount, err := s.CountFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failedCount)

	// Manual retry resets to pending with zero attempts.
	reset, err := s.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].Attempts)
	assert.Equal(t, int64(42), pending[0].UpdatedAt)

	// Ack removes the item for good.
	require.NoError(t, s.MarkSynced(ctx, "item-1"))
	err = s.MarkSynced(ctx, "item-1")
	require.ErrorIs(t, err, storage.ErrOutboxItemNotFound)
}

func TestSQLite_Keys(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	meta := &models.KeyMetadata{
		ID:        "key-1",
		Type:      models.KeyTypeData,
		Algorithm: models.AlgorithmChaCha20,
		CreatedAt: 5,
		IsActive:  true,
	}
	require.NoError(t, s.SaveKey(ctx, meta))

	got, err := s.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	active, err := s.ActiveKey(ctx, models.KeyTypeData)
	require.NoError(t, err)
	assert.Equal(t, "key-1", active.ID)

	// Deactivate and verify no active key remains.
	meta.IsActive = false
	require.NoError(t, s.SaveKey(ctx, meta))

	_, err = s.ActiveKey(ctx, models.KeyTypeData)
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestSQLite_Meta(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ts, err := s.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SaveLastSyncAt(ctx, 777))
	ts, err = s.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(777), ts)

	id1, err := s.DeviceID(ctx)
	require.NoError(t, err)
	id2, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
