package storage

// Store combines every local persistence contract backed by a single
// database file. Both the bbolt and the sqlite adapters satisfy it, so the
// backend is an open/close-time choice.
type Store interface {
	RecordStore
	OutboxStore
	KeyStore
	MetaStore

	Close() error
}
