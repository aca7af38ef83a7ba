package models

// OutboxStatus is the lifecycle state of a pending-sync item.
type OutboxStatus string

const (
	// OutboxPending marks an item waiting to be published (or retried).
	OutboxPending OutboxStatus = "pending"
	// OutboxError marks an item that exceeded the retry ceiling and now
	// requires a manual retry. It is never deleted automatically.
	OutboxError OutboxStatus = "error"
)

// Valid reports whether the status is a known outbox status. Unknown tags
// read back from storage are rejected rather than cast.
func (s OutboxStatus) Valid() bool {
	return s == OutboxPending || s == OutboxError
}

// OutboxItem is a durable write intent awaiting confirmed remote replication.
// Items are created in the same storage transaction as the record write that
// produced them and deleted only on a confirmed remote ack.
type OutboxItem struct {
	ID            string       `json:"id"`              // synthetic item id (UUID)
	RecordID      string       `json:"record_id"`       // id of the record this intent replicates
	Kind          RecordKind   `json:"kind"`            // record kind, also the wire kind
	Payload       []byte       `json:"payload"`         // wire-ready payload (serialized envelope)
	UpdatedAt     int64        `json:"updated_at"`      // logical timestamp of the record version enqueued
	Status        OutboxStatus `json:"status"`          // pending or error
	Attempts      int          `json:"attempts"`        // publish attempts so far
	LastAttemptAt int64        `json:"last_attempt_at"` // unix milli of the last attempt, 0 if none
	CreatedAt     int64        `json:"created_at"`      // unix milli of enqueue
}
