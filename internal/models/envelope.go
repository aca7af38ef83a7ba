package models

// Envelope algorithms. The enum is versioned through EnvelopeVersion: a new
// algorithm or layout bumps the schema version, and decryption of versions we
// do not understand fails closed.
const (
	AlgorithmAESGCM   = "aes-256-gcm"
	AlgorithmChaCha20 = "chacha20-poly1305"
)

// EnvelopeVersion is the current envelope schema version written by this
// build. Older versions remain decryptable as long as they are supported.
const EnvelopeVersion = 1

// EncryptedEnvelope is the self-describing wrapper around ciphertext. It is
// opaque outside the key manager: no other component inspects Ciphertext or
// Nonce. The authentication tag is folded into Ciphertext (AEAD seal layout).
type EncryptedEnvelope struct {
	Version     int    `json:"version"`      // envelope schema version
	Algorithm   string `json:"algorithm"`    // one of the Algorithm* constants
	KeyID       string `json:"key_id"`       // key that produced this envelope
	Nonce       []byte `json:"nonce"`        // random per-encryption nonce
	Ciphertext  []byte `json:"ciphertext"`   // sealed payload including auth tag
	EncryptedAt int64  `json:"encrypted_at"` // unix milli of encryption
}

// SupportedAlgorithm reports whether the algorithm tag is one this build can
// open.
func SupportedAlgorithm(alg string) bool {
	return alg == AlgorithmAESGCM || alg == AlgorithmChaCha20
}
