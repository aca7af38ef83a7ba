// Package wire defines the payload shapes exchanged through the relay
// network. These are deliberately separate from the engine's internal models:
// the wire form is a compatibility contract shared by every device of a
// tenant, and it never carries local-only state such as the synced flag.
package wire

import (
	"encoding/json"
	"fmt"
)

// Record is the plaintext wire form of a replicated record. It is what gets
// sealed into an envelope before publishing.
type Record struct {
	ID        string          `json:"id"`
	Kind      int             `json:"kind"`
	UpdatedAt int64           `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Envelope is the wire form of an encrypted payload. Field names are part of
// the cross-device contract.
type Envelope struct {
	Version     int    `json:"version"`
	Algorithm   string `json:"algorithm"`
	KeyID       string `json:"key_id"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
	EncryptedAt int64  `json:"encrypted_at"`
}

// EncodeRecord validates and serializes a wire record.
func EncodeRecord(r Record) ([]byte, error) {
	if err := validateRecord(r); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wire record: %w", err)
	}
	return data, nil
}

// DecodeRecord deserializes and validates a wire record. Malformed payloads
// are rejected here so they never reach the local store.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal wire record: %w", err)
	}
	if err := validateRecord(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// EncodeEnvelope serializes an envelope for publishing.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope deserializes an envelope received from the relay.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if e.Version <= 0 {
		return Envelope{}, fmt.Errorf("envelope missing schema version")
	}
	if e.Algorithm == "" || e.KeyID == "" {
		return Envelope{}, fmt.Errorf("envelope missing algorithm or key id")
	}
	return e, nil
}

func validateRecord(r Record) error {
	if r.ID == "" {
		return fmt.Errorf("wire record missing id")
	}
	if r.Kind == 0 {
		return fmt.Errorf("wire record missing kind")
	}
	if r.UpdatedAt <= 0 {
		return fmt.Errorf("wire record missing updated_at")
	}
	return nil
}
