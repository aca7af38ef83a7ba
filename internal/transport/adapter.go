// Package transport abstracts the relay-based replication network. The sync
// engine consumes only the Adapter interface and never assumes ordering or
// at-most-once delivery: duplicates, reordering, and delays are all expected
// from this boundary.
package transport

import (
	"context"

	"github.com/opentill/tillsync/internal/models"
)

// Tag is a (name, value) pair attached to a published record. At least the
// tenant-scoping tag is always present.
type Tag struct {
	Name  string
	Value string
}

// Ack confirms that the relay accepted a published record.
type Ack struct {
	RemoteID string // relay-visible record id
}

// RemoteRecord is a record as seen on the relay: an addressable, replaceable
// value identified by (Author, Kind, Identifier).
type RemoteRecord struct {
	RemoteID   string // relay-visible record id
	Author     string // publishing device key
	Kind       int    // wire kind number
	Identifier string // replaceable-record identifier (the record id)
	Payload    []byte // serialized envelope (or plain payload)
	Tags       []Tag
	CreatedAt  int64 // relay receipt time, unix milli; never used for merge ordering
}

// Handler receives live subscription events.
type Handler func(RemoteRecord)

//go:generate moq -out adapter_mock.go . Adapter

// Adapter is the transport boundary the core consumes. Publishing the same
// (kind, identifier) again replaces the prior value at the network level,
// which is what makes outbox redelivery safe.
type Adapter interface {
	// Publish sends an addressable record. Returns an ack only after the
	// relay confirmed acceptance.
	Publish(ctx context.Context, kind int, identifier string, payload []byte, tags []Tag) (*Ack, error)

	// Query fetches records matching the filter.
	Query(ctx context.Context, filter models.RemoteRecordFilter) ([]RemoteRecord, error)

	// Subscribe delivers live records matching the filter to fn until the
	// returned stop function is called or ctx is cancelled.
	Subscribe(ctx context.Context, filter models.RemoteRecordFilter, fn Handler) (stop func(), err error)
}
