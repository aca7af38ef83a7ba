package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// SaveKey stores or updates key metadata.
func (s *Storage) SaveKey(ctx context.Context, meta *models.KeyMetadata) error {
	query := `
		INSERT INTO keys (id, type, algorithm, created_at, expires_at, rotated_from, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = excluded.expires_at,
			rotated_from = excluded.rotated_from,
			is_active = excluded.is_active
	`

	_, err := s.db.ExecContext(ctx, query,
		meta.ID,
		string(meta.Type),
		meta.Algorithm,
		meta.CreatedAt,
		meta.ExpiresAt,
		meta.RotatedFrom,
		boolToInt(meta.IsActive),
	)
	if err != nil {
		return fmt.Errorf("failed to save key metadata: %w", err)
	}

	return nil
}

// GetKey retrieves key metadata by id.
func (s *Storage) GetKey(ctx context.Context, id string) (*models.KeyMetadata, error) {
	meta, err := scanKeyMetadata(s.db.QueryRowContext(ctx, selectKeyQuery+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key metadata: %w", err)
	}
	return meta, nil
}

// ListKeys returns metadata for all known keys.
func (s *Storage) ListKeys(ctx context.Context) ([]*models.KeyMetadata, error) {
	rows, err := s.db.QueryContext(ctx, selectKeyQuery+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var metas []*models.KeyMetadata
	for rows.Next() {
		meta, err := scanKeyMetadata(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return metas, nil
}

// ActiveKey returns the active key metadata for a type.
func (s *Storage) ActiveKey(ctx context.Context, keyType models.KeyType) (*models.KeyMetadata, error) {
	meta, err := scanKeyMetadata(s.db.QueryRowContext(ctx,
		selectKeyQuery+` WHERE type = ? AND is_active = 1`, string(keyType)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get active key: %w", err)
	}
	return meta, nil
}

const selectKeyQuery = `
	SELECT id, type, algorithm, created_at, expires_at, rotated_from, is_active
	FROM keys
`

func scanKeyMetadata(row scanner) (*models.KeyMetadata, error) {
	var (
		meta     models.KeyMetadata
		keyType  string
		isActive int
	)

	if err := row.Scan(&meta.ID, &keyType, &meta.Algorithm, &meta.CreatedAt, &meta.ExpiresAt, &meta.RotatedFrom, &isActive); err != nil {
		return nil, err
	}

	meta.Type = models.KeyType(keyType)
	if !meta.Type.Valid() {
		return nil, fmt.Errorf("stored key has unknown type %q", keyType)
	}
	meta.IsActive = isActive != 0

	return &meta, nil
}
