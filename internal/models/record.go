package models

import (
	"encoding/json"
	"fmt"
)

// RecordKind identifies a replicated entity type. The numeric values double
// as the wire kind numbers on the relay, chosen from the replaceable-record
// range so that republishing under the same (author, kind, identifier) triple
// supersedes the previous value.
type RecordKind int

const (
	KindAccount      RecordKind = 30100
	KindJournalEntry RecordKind = 30101
	KindCustomer     RecordKind = 30102
	KindPromotion    RecordKind = 30103
	KindExpense      RecordKind = 30104
	KindAuditLog     RecordKind = 30105
	KindSetting      RecordKind = 30106
	KindHelpArticle  RecordKind = 30107
)

// kindNames maps every known kind to its stable string tag. Decoding goes
// through KindFromInt/KindFromName so that unknown tags are rejected at the
// store boundary instead of being cast blindly.
var kindNames = map[RecordKind]string{
	KindAccount:      "account",
	KindJournalEntry: "journal_entry",
	KindCustomer:     "customer",
	KindPromotion:    "promotion",
	KindExpense:      "expense",
	KindAuditLog:     "audit_log",
	KindSetting:      "setting",
	KindHelpArticle:  "help_article",
}

// Valid reports whether the kind is one of the known record kinds.
func (k RecordKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// String returns the stable name of the kind, or "unknown" for invalid kinds.
func (k RecordKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindFromInt validates a wire kind number and converts it to a RecordKind.
// Returns an error for unknown kinds so malformed remote records are rejected
// instead of silently stored.
func KindFromInt(n int) (RecordKind, error) {
	k := RecordKind(n)
	if !k.Valid() {
		return 0, fmt.Errorf("unknown record kind %d", n)
	}
	return k, nil
}

// KindFromName converts a stable kind name back to a RecordKind.
func KindFromName(name string) (RecordKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown record kind %q", name)
}

// Kinds returns all known record kinds. Used to build pull filters that cover
// every replicated entity type.
func Kinds() []RecordKind {
	out := make([]RecordKind, 0, len(kindNames))
	for k := range kindNames {
		out = append(out, k)
	}
	return out
}

// Record is the unit of replication: a whole domain entity plus the metadata
// the sync engine needs to order and deduplicate it. The engine never looks
// inside Data; domain semantics live with the caller.
type Record struct {
	ID        string          `json:"id"`                  // stable id, unique within its kind
	Kind      RecordKind      `json:"kind"`                // entity type
	UpdatedAt int64           `json:"updated_at"`          // logical timestamp (unix milli), set by the writer
	Data      json.RawMessage `json:"data"`                // opaque domain payload
	RemoteID  string          `json:"remote_id,omitempty"` // relay-assigned event id, tie-break key
	Synced    bool            `json:"synced"`              // local-only, never replicated
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	data := make(json.RawMessage, len(r.Data))
	copy(data, r.Data)

	return &Record{
		ID:        r.ID,
		Kind:      r.Kind,
		UpdatedAt: r.UpdatedAt,
		Data:      data,
		RemoteID:  r.RemoteID,
		Synced:    r.Synced,
	}
}

// IsNewerThan reports whether the record carries a strictly greater logical
// timestamp than other. Equal timestamps are not "newer"; ties are resolved
// by the conflict resolver, never here.
func (r *Record) IsNewerThan(other *Record) bool {
	return r.UpdatedAt > other.UpdatedAt
}
