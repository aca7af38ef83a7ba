package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// Get retrieves a record by kind and id.
func (s *Storage) Get(ctx context.Context, kind models.RecordKind, id string) (*models.Record, error) {
	if !kind.Valid() {
		return nil, storage.ErrUnknownKind
	}

	query := `
		SELECT kind, id, updated_at, data, remote_id, synced
		FROM records
		WHERE kind = ? AND id = ?
	`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, int(kind), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// Upsert stores or overwrites a record under its (kind, id).
func (s *Storage) Upsert(ctx context.Context, record *models.Record) error {
	if !record.Kind.Valid() {
		return storage.ErrUnknownKind
	}

	if _, err := s.db.ExecContext(ctx, upsertRecordQuery, upsertRecordArgs(record)...); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	return nil
}

// UpsertWithOutbox stores the record and enqueues the outbox item in one SQL
// transaction.
func (s *Storage) UpsertWithOutbox(ctx context.Context, record *models.Record, item *models.OutboxItem) error {
	if !record.Kind.Valid() || !item.Kind.Valid() {
		return storage.ErrUnknownKind
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, upsertRecordQuery, upsertRecordArgs(record)...); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, insertOutboxQuery, insertOutboxArgs(item)...); err != nil {
		return fmt.Errorf("failed to enqueue outbox item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ScanKind returns all records of a kind.
func (s *Storage) ScanKind(ctx context.Context, kind models.RecordKind) ([]*models.Record, error) {
	if !kind.Valid() {
		return nil, storage.ErrUnknownKind
	}

	query := `
		SELECT kind, id, updated_at, data, remote_id, synced
		FROM records
		WHERE kind = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, int(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to scan kind: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return records, nil
}

// Delete removes a record.
func (s *Storage) Delete(ctx context.Context, kind models.RecordKind, id string) error {
	if !kind.Valid() {
		return storage.ErrUnknownKind
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, int(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrRecordNotFound
	}

	return nil
}

const upsertRecordQuery = `
	INSERT INTO records (kind, id, updated_at, data, remote_id, synced)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (kind, id) DO UPDATE SET
		updated_at = excluded.updated_at,
		data = excluded.data,
		remote_id = excluded.remote_id,
		synced = excluded.synced
`

func upsertRecordArgs(record *models.Record) []any {
	return []any{
		int(record.Kind),
		record.ID,
		record.UpdatedAt,
		[]byte(record.Data),
		record.RemoteID,
		boolToInt(record.Synced),
	}
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		kind   int
		record models.Record
		synced int
	)

	if err := row.Scan(&kind, &record.ID, &record.UpdatedAt, (*[]byte)(&record.Data), &record.RemoteID, &synced); err != nil {
		return nil, err
	}

	k, err := models.KindFromInt(kind)
	if err != nil {
		return nil, fmt.Errorf("stored record has invalid kind: %w", err)
	}
	record.Kind = k
	record.Synced = synced != 0

	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
