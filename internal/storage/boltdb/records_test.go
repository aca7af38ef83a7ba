package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "tillsync.db"))
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

func TestStorage_UpsertGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := testRecord(models.KindCustomer, "cust-1", 100)
	require.NoError(t, s.Upsert(ctx, record))

	got, err := s.Get(ctx, models.KindCustomer, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Same id overwrites.
	record2 := testRecord(models.KindCustomer, "cust-1", 200)
	require.NoError(t, s.Upsert(ctx, record2))

	got, err = s.Get(ctx, models.KindCustomer, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.UpdatedAt)
}

func TestStorage_Get_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(context.Background(), models.KindAccount, "missing")
	require.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_Get_UnknownKind(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(context.Background(), models.RecordKind(99), "x")
	require.ErrorIs(t, err, storage.ErrUnknownKind)

	err = s.Upsert(context.Background(), testRecord(models.RecordKind(99), "x", 1))
	require.ErrorIs(t, err, storage.ErrUnknownKind)
}

func TestStorage_ScanKind(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord(models.KindExpense, "e1", 1)))
	require.NoError(t, s.Upsert(ctx, testRecord(models.KindExpense, "e2", 2)))
	require.NoError(t, s.Upsert(ctx, testRecord(models.KindCustomer, "c1", 3)))

	expenses, err := s.ScanKind(ctx, models.KindExpense)
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	customers, err := s.ScanKind(ctx, models.KindCustomer)
	require.NoError(t, err)
	assert.Len(t, customers, 1)

	promos, err := s.ScanKind(ctx, models.KindPromotion)
	require.NoError(t, err)
	assert.Empty(t, promos)
}

func TestStorage_Delete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, testRecord(models.KindSetting, "s1", 1)))
	require.NoError(t, s.Delete(ctx, models.KindSetting, "s1"))

	_, err := s.Get(ctx, models.KindSetting, "s1")
	require.ErrorIs(t, err, storage.ErrRecordNotFound)

	err = s.Delete(ctx, models.KindSetting, "s1")
	require.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestStorage_UpsertWithOutbox_Atomic(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := testRecord(models.KindJournalEntry, "je-1", 100)
	item := &models.OutboxItem{
		ID:       uuid.New().String(),
		RecordID: record.ID,
		Kind:     record.Kind,
		Payload:  []byte(`{"envelope":true}`),
		Status:   models.OutboxPending,
	}

	require.NoError(t, s.UpsertWithOutbox(ctx, record, item))

	// Both sides are visible.
	got, err := s.Get(ctx, models.KindJournalEntry, "je-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, item.ID, pending[0].ID)
}

func TestStorage_UpsertWithOutbox_RejectsUnknownKind(t *testing.T) {
	s := newTestStorage(t)

	record := testRecord(models.RecordKind(99), "x", 1)
	item := &models.OutboxItem{ID: "i1", Kind: models.RecordKind(99), Status: models.OutboxPending}

	err := s.UpsertWithOutbox(context.Background(), record, item)
	require.ErrorIs(t, err, storage.ErrUnknownKind)

	// Nothing was queued.
	pending, err := s.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStorage_Closed(t *testing.T) {
	s := &Storage{}

	_, err := s.Get(context.Background(), models.KindAccount, "x")
	require.ErrorIs(t, err, storage.ErrStorageClosed)

	err = s.Upsert(context.Background(), testRecord(models.KindAccount, "x", 1))
	require.ErrorIs(t, err, storage.ErrStorageClosed)
}
