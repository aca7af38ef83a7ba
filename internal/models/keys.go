package models

// KeyType classifies a symmetric key by its role.
type KeyType string

const (
	KeyTypeMaster  KeyType = "master"  // derived from the user passphrase
	KeyTypeData    KeyType = "data"    // encrypts record payloads
	KeyTypeSession KeyType = "session" // short-lived transport material
	KeyTypeBackup  KeyType = "backup"  // export/escrow copies
)

// Valid reports whether the key type is known.
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeMaster, KeyTypeData, KeyTypeSession, KeyTypeBackup:
		return true
	}
	return false
}

// KeyMetadata describes a key without carrying its material. Material lives
// only in the in-memory keyring; metadata is what gets persisted.
//
// Invariant: at most one active key per type is used for new encryptions.
// Retired keys stay available (IsActive=false) until ExpiresAt elapses so
// envelopes produced before a rotation remain decryptable.
type KeyMetadata struct {
	ID          string  `json:"id"`
	Type        KeyType `json:"type"`
	Algorithm   string  `json:"algorithm"`
	CreatedAt   int64   `json:"created_at"`             // unix milli
	ExpiresAt   int64   `json:"expires_at,omitempty"`   // unix milli, 0 = no expiry
	RotatedFrom string  `json:"rotated_from,omitempty"` // id of the key this one replaced
	IsActive    bool    `json:"is_active"`
}

// Expired reports whether the key's grace period has elapsed at the given
// time (unix milli). Keys without an expiry never expire.
func (m *KeyMetadata) Expired(now int64) bool {
	return m.ExpiresAt != 0 && now >= m.ExpiresAt
}
