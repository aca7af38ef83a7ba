// Package keyring is the key and envelope manager: it owns symmetric key
// material, produces and opens encrypted envelopes, and handles rotation.
// Key material lives only in this package's memory; everything persisted is
// metadata.
package keyring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opentill/tillsync/internal/crypto"
	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

var (
	// ErrKeyUnavailable indicates the envelope's key is not present in the
	// keyring or its grace period has elapsed.
	ErrKeyUnavailable = errors.New("key unavailable")

	// ErrUnsupportedEnvelope indicates an envelope version or algorithm this
	// build cannot open.
	ErrUnsupportedEnvelope = errors.New("unsupported envelope")
)

// Config carries the crypto knobs of the manager.
type Config struct {
	// Algorithm is the envelope algorithm used for new encryptions.
	Algorithm string
	// KDFIterations is the PBKDF2 iteration count for password derivation.
	KDFIterations int
	// GracePeriod is how long a rotated-out key stays decryptable.
	GracePeriod time.Duration
}

// Manager implements the key and envelope manager. Reads vastly outnumber
// writes; rotation happens under the write lock as one atomic step so there
// is never a window without an active key.
type Manager struct {
	mu       sync.RWMutex
	material map[string][]byte // keyID -> key material, memory only

	store  storage.KeyStore
	cfg    Config
	logger *slog.Logger

	// now is swapped in tests to control expiry.
	now func() time.Time
}

// New creates a key manager backed by the given metadata store.
func New(store storage.KeyStore, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		material: make(map[string][]byte),
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// GenerateKey creates a fresh random key of the given type and makes it the
// active key for that type, deactivating any previous active key.
func (m *Manager) GenerateKey(ctx context.Context, keyType models.KeyType) (string, error) {
	if !keyType.Valid() {
		return "", fmt.Errorf("invalid key type %q", keyType)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}

	return m.install(ctx, keyType, "", key)
}

// ImportKey registers externally produced key material (e.g. a key derived
// on another device) as the active key of its type.
func (m *Manager) ImportKey(ctx context.Context, keyType models.KeyType, key []byte) (string, error) {
	if !keyType.Valid() {
		return "", fmt.Errorf("invalid key type %q", keyType)
	}
	if len(key) != crypto.KeySize {
		return "", fmt.Errorf("key must be %d bytes, got %d", crypto.KeySize, len(key))
	}

	return m.install(ctx, keyType, "", key)
}

// ImportSharedKey registers key material under a deterministic id, the hex
// SHA-256 fingerprint of the material. Devices deriving the same key from a
// shared passphrase therefore agree on the id their envelopes reference.
//
// Re-importing a key already known to the store only loads its material into
// memory; persisted metadata, including active/retired state after a
// rotation, is left untouched.
func (m *Manager) ImportSharedKey(ctx context.Context, keyType models.KeyType, key []byte) (string, error) {
	if !keyType.Valid() {
		return "", fmt.Errorf("invalid key type %q", keyType)
	}
	if len(key) != crypto.KeySize {
		return "", fmt.Errorf("key must be %d bytes, got %d", crypto.KeySize, len(key))
	}

	id := Fingerprint(key)
	if _, err := m.store.GetKey(ctx, id); err == nil {
		m.mu.Lock()
		m.material[id] = key
		m.mu.Unlock()
		return id, nil
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return "", err
	}

	return m.install(ctx, keyType, id, key)
}

// Fingerprint returns the deterministic key id for shared key material.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// DeriveFromPassword derives the master key from a passphrase using a slow
// iterated KDF and installs it. A nil salt generates a fresh random one; the
// salt is returned so callers can persist it for re-derivation.
func (m *Manager) DeriveFromPassword(ctx context.Context, password string, salt []byte) (keyID string, usedSalt []byte, err error) {
	if salt == nil {
		salt, err = crypto.GenerateSalt()
		if err != nil {
			return "", nil, err
		}
	}

	key, err := crypto.DeriveKey(password, salt, m.cfg.KDFIterations)
	if err != nil {
		return "", nil, err
	}

	id, err := m.install(ctx, models.KeyTypeMaster, "", key)
	if err != nil {
		return "", nil, err
	}

	return id, salt, nil
}

// Encrypt seals plaintext into an envelope. An empty keyID selects the active
// data key, provisioning one if none exists yet.
func (m *Manager) Encrypt(ctx context.Context, plaintext []byte, keyID string) (*models.EncryptedEnvelope, error) {
	if keyID == "" {
		id, err := m.activeDataKey(ctx)
		if err != nil {
			return nil, err
		}
		keyID = id
	}

	m.mu.RLock()
	key, ok := m.material[keyID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("encrypt with key %s: %w", keyID, ErrKeyUnavailable)
	}

	nonce, ciphertext, err := crypto.Seal(m.cfg.Algorithm, key, plaintext)
	if err != nil {
		return nil, err
	}

	return &models.EncryptedEnvelope{
		Version:     models.EnvelopeVersion,
		Algorithm:   m.cfg.Algorithm,
		KeyID:       keyID,
		Nonce:       nonce,
		Ciphertext:  ciphertext,
		EncryptedAt: m.now().UnixMilli(),
	}, nil
}

// Decrypt opens an envelope. It fails closed: a missing or expired key, an
// unsupported version or algorithm, or an authentication failure all return
// an error and never partial plaintext.
func (m *Manager) Decrypt(ctx context.Context, env *models.EncryptedEnvelope) ([]byte, error) {
	if env.Version <= 0 || env.Version > models.EnvelopeVersion {
		return nil, fmt.Errorf("envelope version %d: %w", env.Version, ErrUnsupportedEnvelope)
	}
	if !models.SupportedAlgorithm(env.Algorithm) {
		return nil, fmt.Errorf("envelope algorithm %q: %w", env.Algorithm, ErrUnsupportedEnvelope)
	}

	m.mu.RLock()
	key, ok := m.material[env.KeyID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decrypt with key %s: %w", env.KeyID, ErrKeyUnavailable)
	}

	meta, err := m.store.GetKey(ctx, env.KeyID)
	if err != nil {
		return nil, fmt.Errorf("decrypt with key %s: %w", env.KeyID, ErrKeyUnavailable)
	}
	if meta.Expired(m.now().UnixMilli()) {
		return nil, fmt.Errorf("key %s past its grace period: %w", env.KeyID, ErrKeyUnavailable)
	}

	return crypto.Open(env.Algorithm, key, env.Nonce, env.Ciphertext)
}

// RotateKey retires oldKeyID and activates a fresh key of the same type. The
// swap happens as one atomic step under the manager lock; the old key stays
// decryptable until its grace period elapses.
func (m *Manager) RotateKey(ctx context.Context, oldKeyID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldMeta, err := m.store.GetKey(ctx, oldKeyID)
	if err != nil {
		return "", fmt.Errorf("rotate key %s: %w", oldKeyID, err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate key material: %w", err)
	}

	now := m.now()
	newMeta := &models.KeyMetadata{
		ID:          uuid.New().String(),
		Type:        oldMeta.Type,
		Algorithm:   m.cfg.Algorithm,
		CreatedAt:   now.UnixMilli(),
		RotatedFrom: oldKeyID,
		IsActive:    true,
	}

	// New key first: a crash between the two writes leaves two active keys
	// (resolved on next rotation), never zero.
	if err := m.store.SaveKey(ctx, newMeta); err != nil {
		return "", fmt.Errorf("failed to save new key metadata: %w", err)
	}

	oldMeta.IsActive = false
	oldMeta.ExpiresAt = now.Add(m.cfg.GracePeriod).UnixMilli()
	if err := m.store.SaveKey(ctx, oldMeta); err != nil {
		return "", fmt.Errorf("failed to retire old key metadata: %w", err)
	}

	m.material[newMeta.ID] = key

	m.logger.Info("key rotated",
		"old_key_id", oldKeyID,
		"new_key_id", newMeta.ID,
		"type", string(newMeta.Type),
		"grace_until", oldMeta.ExpiresAt)

	return newMeta.ID, nil
}

// ReEncrypt opens an envelope and seals its plaintext under newKeyID (or the
// active data key when empty). Used opportunistically during rotation.
func (m *Manager) ReEncrypt(ctx context.Context, env *models.EncryptedEnvelope, newKeyID string) (*models.EncryptedEnvelope, error) {
	plaintext, err := m.Decrypt(ctx, env)
	if err != nil {
		return nil, err
	}

	return m.Encrypt(ctx, plaintext, newKeyID)
}

// activeDataKey returns the active data key id, provisioning one when none
// exists.
func (m *Manager) activeDataKey(ctx context.Context) (string, error) {
	meta, err := m.store.ActiveKey(ctx, models.KeyTypeData)
	if err == nil {
		return meta.ID, nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		return "", err
	}

	m.logger.Info("no active data key, provisioning one")
	return m.GenerateKey(ctx, models.KeyTypeData)
}

// install stores material in memory and persists metadata, deactivating any
// previous active key of the same type. An empty id generates a random one.
func (m *Manager) install(ctx context.Context, keyType models.KeyType, id string, key []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.New().String()
	}

	prev, err := m.store.ActiveKey(ctx, keyType)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return "", err
	}

	meta := &models.KeyMetadata{
		ID:        id,
		Type:      keyType,
		Algorithm: m.cfg.Algorithm,
		CreatedAt: m.now().UnixMilli(),
		IsActive:  true,
	}

	if err := m.store.SaveKey(ctx, meta); err != nil {
		return "", fmt.Errorf("failed to save key metadata: %w", err)
	}

	// Re-installing the same key (shared-key import on startup) must not
	// deactivate itself.
	if prev != nil && prev.ID != meta.ID {
		prev.IsActive = false
		if err := m.store.SaveKey(ctx, prev); err != nil {
			return "", fmt.Errorf("failed to deactivate previous key: %w", err)
		}
	}

	m.material[meta.ID] = key

	return meta.ID, nil
}
