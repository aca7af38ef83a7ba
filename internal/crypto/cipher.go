package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/opentill/tillsync/internal/models"
)

const (
	// KeySize is the symmetric key size for both supported algorithms.
	KeySize = 32
)

// Seal encrypts plaintext with the given algorithm and returns the random
// nonce and the sealed ciphertext (auth tag folded in, AEAD layout).
func Seal(alg string, key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts ciphertext sealed by Seal. It fails closed: on a wrong key,
// tampered ciphertext, or auth tag mismatch it returns an error and no
// partial plaintext.
func Open(alg string, key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}

	return plaintext, nil
}

// newAEAD constructs the AEAD for a supported algorithm tag.
func newAEAD(alg string, key []byte) (cipher.AEAD, error) {
	switch alg {
	case models.AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return aead, nil
	case models.AlgorithmChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create chacha20poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported envelope algorithm %q", alg)
	}
}

// GenerateKey returns a fresh random 32-byte symmetric key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
