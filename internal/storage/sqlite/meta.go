package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	metaKeyLastSyncAt = "last_sync_at"
	metaKeyDeviceID   = "device_id"
)

// SaveLastSyncAt saves the watermark of the last successful pull.
func (s *Storage) SaveLastSyncAt(ctx context.Context, ts int64) error {
	return s.setMeta(ctx, metaKeyLastSyncAt, strconv.FormatInt(ts, 10))
}

// GetLastSyncAt returns the pull watermark, 0 if no pull has completed yet.
func (s *Storage) GetLastSyncAt(ctx context.Context) (int64, error) {
	value, err := s.getMeta(ctx, metaKeyLastSyncAt)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse last sync timestamp: %w", err)
	}

	return ts, nil
}

// DeviceID returns the stable device id, generating one on first use.
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	id, err := s.getMeta(ctx, metaKeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := s.setMeta(ctx, metaKeyDeviceID, id); err != nil {
		return "", err
	}

	return id, nil
}

func (s *Storage) setMeta(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

func (s *Storage) getMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}
