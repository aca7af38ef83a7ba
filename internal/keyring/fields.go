package keyring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentill/tillsync/internal/models"
)

// fieldMarkerKey flags a JSON object as an embedded field envelope.
const fieldMarkerKey = "__encrypted"

// fieldEnvelope is the in-place replacement for an encrypted field value.
// The embedded envelope keeps its own keys, so the wire form reads as
// {"__encrypted":true,"version":1,"algorithm":...,...}.
type fieldEnvelope struct {
	Encrypted bool `json:"__encrypted"`
	models.EncryptedEnvelope
}

// EncryptFields encrypts only the named fields of a JSON object in place,
// replacing each with an embedded envelope marker. Fields not listed remain
// plaintext and stay queryable locally; fields listed but absent are skipped.
func (m *Manager) EncryptFields(ctx context.Context, record json.RawMessage, fields []string, keyID string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(record, &obj); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}

	for _, field := range fields {
		value, ok := obj[field]
		if !ok {
			continue
		}

		env, err := m.Encrypt(ctx, value, keyID)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt field %s: %w", field, err)
		}

		marked, err := json.Marshal(fieldEnvelope{Encrypted: true, EncryptedEnvelope: *env})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field envelope: %w", err)
		}
		obj[field] = marked
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	return out, nil
}

// DecryptFields reverses EncryptFields: every field carrying the embedded
// envelope marker is decrypted back to its original value. Fields without
// the marker pass through untouched.
func (m *Manager) DecryptFields(ctx context.Context, record json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(record, &obj); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}

	for field, value := range obj {
		env, ok, err := parseFieldEnvelope(value)
		if err != nil {
			return nil, fmt.Errorf("field %s carries a malformed envelope: %w", field, err)
		}
		if !ok {
			continue
		}

		plaintext, err := m.Decrypt(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt field %s: %w", field, err)
		}
		obj[field] = plaintext
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	return out, nil
}

// parseFieldEnvelope reports whether the value is a marked field envelope and
// decodes it if so.
func parseFieldEnvelope(value json.RawMessage) (*models.EncryptedEnvelope, bool, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(value, &probe); err != nil {
		// Not an object: a plain field value.
		return nil, false, nil
	}

	marker, ok := probe[fieldMarkerKey]
	if !ok {
		return nil, false, nil
	}

	var flagged bool
	if err := json.Unmarshal(marker, &flagged); err != nil || !flagged {
		return nil, false, nil
	}

	var fe fieldEnvelope
	if err := json.Unmarshal(value, &fe); err != nil {
		return nil, false, err
	}

	return &fe.EncryptedEnvelope, true, nil
}
