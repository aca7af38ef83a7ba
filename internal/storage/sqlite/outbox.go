package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
)

// Enqueue adds a write intent to the outbox.
func (s *Storage) Enqueue(ctx context.Context, item *models.OutboxItem) error {
	if _, err := s.db.ExecContext(ctx, insertOutboxQuery, insertOutboxArgs(item)...); err != nil {
		return fmt.Errorf("failed to enqueue outbox item: %w", err)
	}
	return nil
}

// ListPending returns pending items, oldest first.
func (s *Storage) ListPending(ctx context.Context) ([]*models.OutboxItem, error) {
	return s.listByStatus(ctx, models.OutboxPending)
}

// ListFailed returns error items, oldest first.
func (s *Storage) ListFailed(ctx context.Context) ([]*models.OutboxItem, error) {
	return s.listByStatus(ctx, models.OutboxError)
}

// MarkSynced removes an item after a confirmed remote ack.
func (s *Storage) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outbox item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrOutboxItemNotFound
	}

	return nil
}

// MarkFailed records a failed publish attempt and flips the item to error
// status once Attempts reaches the ceiling.
func (s *Storage) MarkFailed(ctx context.Context, id string, attemptAt int64, ceiling int) (*models.OutboxItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	item, err := getOutboxItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	item.Attempts++
	item.LastAttemptAt = attemptAt
	if item.Attempts >= ceiling {
		item.Status = models.OutboxError
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE outbox SET attempts = ?, last_attempt_at = ?, status = ? WHERE id = ?`,
		item.Attempts, item.LastAttemptAt, string(item.Status), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update outbox item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return item, nil
}

// RetryFailed resets every error item back to pending with zero attempts.
func (s *Storage) RetryFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, attempts = 0 WHERE status = ?`,
		string(models.OutboxPending), string(models.OutboxError),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed items: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(affected), nil
}

// CountPending returns the number of pending items.
func (s *Storage) CountPending(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, models.OutboxPending)
}

// CountFailed returns the number of error items.
func (s *Storage) CountFailed(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, models.OutboxError)
}

const insertOutboxQuery = `
	INSERT INTO outbox (id, record_id, kind, payload, updated_at, status, attempts, last_attempt_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		status = excluded.status,
		attempts = excluded.attempts,
		last_attempt_at = excluded.last_attempt_at
`

func insertOutboxArgs(item *models.OutboxItem) []any {
	return []any{
		item.ID,
		item.RecordID,
		int(item.Kind),
		item.Payload,
		item.UpdatedAt,
		string(item.Status),
		item.Attempts,
		item.LastAttemptAt,
		item.CreatedAt,
	}
}

func (s *Storage) listByStatus(ctx context.Context, status models.OutboxStatus) ([]*models.OutboxItem, error) {
	query := `
		SELECT id, record_id, kind, payload, updated_at, status, attempts, last_attempt_at, created_at
		FROM outbox
		WHERE status = ?
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox items: %w", err)
	}
	defer rows.Close()

	var items []*models.OutboxItem
	for rows.Next() {
		item, err := scanOutboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return items, nil
}

func (s *Storage) countByStatus(ctx context.Context, status models.OutboxStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox items: %w", err)
	}
	return count, nil
}

func getOutboxItem(ctx context.Context, tx *sql.Tx, id string) (*models.OutboxItem, error) {
	query := `
		SELECT id, record_id, kind, payload, updated_at, status, attempts, last_attempt_at, created_at
		FROM outbox
		WHERE id = ?
	`

	item, err := scanOutboxItem(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrOutboxItemNotFound
		}
		return nil, fmt.Errorf("failed to get outbox item: %w", err)
	}

	return item, nil
}

func scanOutboxItem(row scanner) (*models.OutboxItem, error) {
	var (
		item   models.OutboxItem
		kind   int
		status string
	)

	if err := row.Scan(&item.ID, &item.RecordID, &kind, &item.Payload, &item.UpdatedAt, &status, &item.Attempts, &item.LastAttemptAt, &item.CreatedAt); err != nil {
		return nil, err
	}

	k, err := models.KindFromInt(kind)
	if err != nil {
		return nil, fmt.Errorf("stored outbox item has invalid kind: %w", err)
	}
	item.Kind = k

	item.Status = models.OutboxStatus(status)
	if !item.Status.Valid() {
		return nil, fmt.Errorf("stored outbox item has unknown status %q", status)
	}

	return &item, nil
}
