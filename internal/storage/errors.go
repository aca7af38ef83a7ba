package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that no record exists for the (kind, id) pair
	ErrRecordNotFound = errors.New("record not found")

	// ErrOutboxItemNotFound indicates that the outbox item was not found
	ErrOutboxItemNotFound = errors.New("outbox item not found")

	// ErrKeyNotFound indicates that key metadata was not found
	ErrKeyNotFound = errors.New("key metadata not found")

	// ErrUnknownKind indicates a record kind outside the known set
	ErrUnknownKind = errors.New("unknown record kind")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
