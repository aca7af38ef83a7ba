package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentill/tillsync/internal/models"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testKey(t)

	algorithms := []string{models.AlgorithmAESGCM, models.AlgorithmChaCha20}
	payloads := [][]byte{
		[]byte("hello"),
		[]byte(`{"id":"cust-1","name":"Ada","balance":"12.50"}`),
		make([]byte, 64*1024),
	}

	for _, alg := range algorithms {
		t.Run(alg, func(t *testing.T) {
			for _, plaintext := range payloads {
				nonce, ciphertext, err := Seal(alg, key, plaintext)
				require.NoError(t, err)
				assert.NotEqual(t, plaintext, ciphertext)

				got, err := Open(alg, key, nonce, ciphertext)
				require.NoError(t, err)
				assert.Equal(t, plaintext, got)
			}
		})
	}
}

func TestSeal_RejectsBadKeyAndAlgorithm(t *testing.T) {
	_, _, err := Seal(models.AlgorithmAESGCM, make([]byte, 16), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")

	_, _, err = Seal("des-ecb", testKey(t), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported envelope algorithm")
}

func TestOpen_FailsClosed(t *testing.T) {
	key := testKey(t)
	nonce, ciphertext, err := Seal(models.AlgorithmAESGCM, key, []byte("sensitive"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		plaintext, err := Open(models.AlgorithmAESGCM, testKey(t), nonce, ciphertext)
		require.Error(t, err)
		assert.Nil(t, plaintext)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[0] ^= 0xff
		plaintext, err := Open(models.AlgorithmAESGCM, key, nonce, tampered)
		require.Error(t, err)
		assert.Nil(t, plaintext)
	})

	t.Run("tampered tag", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[len(tampered)-1] ^= 0xff
		plaintext, err := Open(models.AlgorithmAESGCM, key, nonce, tampered)
		require.Error(t, err)
		assert.Nil(t, plaintext)
	})

	t.Run("wrong nonce size", func(t *testing.T) {
		plaintext, err := Open(models.AlgorithmAESGCM, key, nonce[:4], ciphertext)
		require.Error(t, err)
		assert.Nil(t, plaintext)
	})
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	require.NoError(t, err)
	k2, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.NotEqual(t, k1, k2)
}

func TestDeriveKey(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	k1, err := DeriveKey("correct horse battery staple", salt, MinKDFIterations)
	require.NoError(t, err)
	assert.Len(t, k1, KeySize)

	// Deterministic for the same inputs.
	k2, err := DeriveKey("correct horse battery staple", salt, MinKDFIterations)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	// Different salt gives a different key.
	otherSalt, err := GenerateSalt()
	require.NoError(t, err)
	k3, err := DeriveKey("correct horse battery staple", otherSalt, MinKDFIterations)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveKey_Validation(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	tests := []struct {
		name       string
		password   string
		salt       []byte
		iterations int
		errMsg     string
	}{
		{name: "empty password", password: "", salt: salt, iterations: MinKDFIterations, errMsg: "password cannot be empty"},
		{name: "short salt", password: "p", salt: salt[:8], iterations: MinKDFIterations, errMsg: "salt must be"},
		{name: "weak iterations", password: "p", salt: salt, iterations: 1000, errMsg: "iterations must be at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKey(tt.password, tt.salt, tt.iterations)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
