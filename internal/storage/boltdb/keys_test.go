package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

func TestKeys_SaveGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	meta := &models.KeyMetadata{
		ID:        "key-1",
		Type:      models.KeyTypeData,
		Algorithm: models.AlgorithmAESGCM,
		CreatedAt: 100,
		IsActive:  true,
	}
	require.NoError(t, s.SaveKey(ctx, meta))

	got, err := s.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	_, err = s.GetKey(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestKeys_ActiveKey(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveKey(ctx, &models.KeyMetadata{
		ID: "old", Type: models.KeyTypeData, Algorithm: models.AlgorithmAESGCM, IsActive: false,
	}))
	require.NoError(t, s.SaveKey(ctx, &models.KeyMetadata{
		ID: "current", Type: models.KeyTypeData, Algorithm: models.AlgorithmAESGCM, IsActive: true,
	}))
	require.NoError(t, s.SaveKey(ctx, &models.KeyMetadata{
		ID: "master", Type: models.KeyTypeMaster, Algorithm: models.AlgorithmAESGCM, IsActive: true,
	}))

	active, err := s.ActiveKey(ctx, models.KeyTypeData)
	require.NoError(t, err)
	assert.Equal(t, "current", active.ID)

	_, err = s.ActiveKey(ctx, models.KeyTypeSession)
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestKeys_ListKeys(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	metas, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)

	require.NoError(t, s.SaveKey(ctx, &models.KeyMetadata{ID: "a", Type: models.KeyTypeData}))
	require.NoError(t, s.SaveKey(ctx, &models.KeyMetadata{ID: "b", Type: models.KeyTypeBackup}))

	metas, err = s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestMeta_LastSyncAt(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ts, err := s.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts, "no sync performed yet")

	require.NoError(t, s.SaveLastSyncAt(ctx, 123456))

	ts, err = s.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), ts)
}

func TestMeta_DeviceID_Stable(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id1, err := s.DeviceID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "device id must be stable across calls")
}
