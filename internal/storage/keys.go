package storage

import (
	"context"

	"github.com/opentill/tillsync/internal/models"
)

//go:generate moq -out keys_mock.go . KeyStore

// KeyStore persists key metadata. Key material never touches this store; it
// lives only in the keyring's memory.
type KeyStore interface {
	// SaveKey stores or updates key metadata.
	SaveKey(ctx context.Context, meta *models.KeyMetadata) error

	// GetKey retrieves key metadata by id.
	// Returns ErrKeyNotFound if absent.
	GetKey(ctx context.Context, id string) (*models.KeyMetadata, error)

	// ListKeys returns metadata for all known keys.
	ListKeys(ctx context.Context) ([]*models.KeyMetadata, error)

	// ActiveKey returns the active key metadata for a type.
	// Returns ErrKeyNotFound when no active key of that type exists.
	ActiveKey(ctx context.Context, keyType models.KeyType) (*models.KeyMetadata, error)
}
