package syncer

import "errors"

var (
	// ErrTransport indicates the relay could not be reached or rejected the
	// operation. Transient by nature; the item stays queued.
	ErrTransport = errors.New("transport error")

	// ErrDecrypt indicates an envelope that could not be opened. The record is
	// skipped, never adopted, and never corrupts local state.
	ErrDecrypt = errors.New("decrypt error")

	// ErrEncoding indicates a payload that does not parse as a wire record or
	// envelope, or that carries an unknown kind.
	ErrEncoding = errors.New("encoding error")

	// ErrCeilingExceeded indicates an outbox item was parked as failed after
	// exhausting its retry budget. It waits for a manual retry.
	ErrCeilingExceeded = errors.New("retry ceiling exceeded")
)
