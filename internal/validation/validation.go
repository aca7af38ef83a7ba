// Package validation holds input checks shared by the CLI and the sync
// engine.
package validation

import (
	"fmt"
	"regexp"
)

// RecordIDPattern is the allowed record id format: letters, digits,
// underscore, hyphen, dot, and colon, 1 to 64 characters. Record ids travel
// as relay identifiers and as storage keys, so the charset stays narrow.
var RecordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)

const (
	// MaxRecordIDLen is the maximum record id length.
	MaxRecordIDLen = 64

	// MinTenantSecretLen guards against trivially guessable tenant secrets;
	// the secret gates both relay access and key derivation.
	MinTenantSecretLen = 8

	// MinPassphraseLen is the minimum encryption passphrase length.
	MinPassphraseLen = 12
)

// ValidateRecordID checks a record id against RecordIDPattern.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if len(id) > MaxRecordIDLen {
		return fmt.Errorf("record id must not exceed %d characters", MaxRecordIDLen)
	}
	if !RecordIDPattern.MatchString(id) {
		return fmt.Errorf("record id can only contain letters, numbers, and _ - . :")
	}
	return nil
}

// ValidateTenantSecret checks the tenant shared secret.
func ValidateTenantSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("tenant secret cannot be empty")
	}
	if len(secret) < MinTenantSecretLen {
		return fmt.Errorf("tenant secret must be at least %d characters long", MinTenantSecretLen)
	}
	return nil
}

// ValidatePassphrase checks the encryption passphrase.
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}
	if len(passphrase) < MinPassphraseLen {
		return fmt.Errorf("passphrase must be at least %d characters long", MinPassphraseLen)
	}
	return nil
}
