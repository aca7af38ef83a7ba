package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the salt size for password-based key derivation.
	SaltSize = 16

	// MinKDFIterations is the floor for the PBKDF2 iteration count. Anything
	// below this makes offline brute-forcing of the passphrase feasible.
	MinKDFIterations = 100_000
)

// GenerateSalt returns a cryptographically random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 32-byte key from a passphrase using PBKDF2-SHA256.
// The iteration count must be at least MinKDFIterations.
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	if iterations < MinKDFIterations {
		return nil, fmt.Errorf("kdf iterations must be at least %d, got %d", MinKDFIterations, iterations)
	}

	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New), nil
}
