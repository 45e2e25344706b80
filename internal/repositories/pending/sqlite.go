package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/dbx"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
)

// SQLiteRepository implements Repository over a DBTX. Enqueue is expected
// to run inside the same transaction as the record write it accompanies.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const changeColumns = `id, entity_type, entity_id, account_id, change_type, payload, created_at, retry_count, last_error, last_attempt_at`

func scanChange(row interface{ Scan(...any) error }) (*models.PendingChange, error) {
	var (
		ch        models.PendingChange
		payload   sql.NullString
		createdAt int64
		attempt   sql.NullInt64
	)
	if err := row.Scan(&ch.ID, &ch.EntityType, &ch.EntityID, &ch.AccountID,
		&ch.ChangeType, &payload, &createdAt, &ch.RetryCount, &ch.LastError, &attempt); err != nil {
		return nil, err
	}
	if payload.Valid {
		ch.Payload = []byte(payload.String)
	}
	ch.CreatedAt = time.Unix(0, createdAt).UTC()
	if attempt.Valid {
		ch.LastAttemptAt = time.Unix(0, attempt.Int64).UTC()
	}
	return &ch, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, ch *models.PendingChange) (models.EnqueueOutcome, error) {
	existing, err := r.forEntity(ctx, ch.EntityID)
	if err != nil {
		return 0, err
	}

	if existing != nil {
		switch {
		case ch.ChangeType == models.ChangeTypeDelete && existing.ChangeType == models.ChangeTypeCreate:
			// the record never reached the server, so there is nothing
			// to delete remotely: drop both sides
			if err := r.Remove(ctx, existing.ID); err != nil {
				return 0, err
			}
			return models.OutcomeCancelled, nil

		case existing.ChangeType == models.ChangeTypeCreate || existing.ChangeType == models.ChangeTypeUpdate:
			// absorb the change into the queued entry, keeping its queue
			// position; a delete demotes the entry's payload
			changeType := existing.ChangeType
			if ch.ChangeType == models.ChangeTypeDelete {
				changeType = models.ChangeTypeDelete
			}
			_, err := r.db.ExecContext(ctx, `
				UPDATE pending_changes
				SET change_type = ?, payload = ?, retry_count = 0, last_error = '', last_attempt_at = NULL
				WHERE id = ?`,
				changeType, nullablePayload(ch, changeType), existing.ID)
			if err != nil {
				return 0, fmt.Errorf("failed to coalesce pending change: %w", err)
			}
			return models.OutcomeReplaced, nil
		}
		// a queued delete is terminal; fall through and append, which
		// should not happen through the repository API
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (entity_type, entity_id, account_id, change_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ch.EntityType, ch.EntityID, ch.AccountID, ch.ChangeType,
		nullablePayload(ch, ch.ChangeType), ch.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s for %s: %w", ch.ChangeType, ch.EntityID, err)
	}
	return models.OutcomeQueued, nil
}

func nullablePayload(ch *models.PendingChange, changeType models.ChangeType) any {
	if changeType == models.ChangeTypeDelete || len(ch.Payload) == 0 {
		return nil
	}
	return string(ch.Payload)
}

// forEntity returns the queued entry for a record, nil when there is none.
// Coalescing keeps the queue at one entry per record, so LIMIT 1 suffices.
func (r *SQLiteRepository) forEntity(ctx context.Context, entityID string) (*models.PendingChange, error) {
	query := `SELECT ` + changeColumns + ` FROM pending_changes WHERE entity_id = ? ORDER BY id LIMIT 1`
	ch, err := scanChange(r.db.QueryRowContext(ctx, query, entityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending change for %s: %w", entityID, err)
	}
	return ch, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.PendingChange, error) {
	query := `SELECT ` + changeColumns + ` FROM pending_changes WHERE id = ?`
	ch, err := scanChange(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending change %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending change %d: %w", id, err)
	}
	return ch, nil
}

func (r *SQLiteRepository) ListRetryable(ctx context.Context, et models.EntityType) ([]models.PendingChange, error) {
	query := `SELECT ` + changeColumns + ` FROM pending_changes
		WHERE entity_type = ? AND retry_count < ? ORDER BY id`
	return r.list(ctx, query, et, models.MaxRetries)
}

func (r *SQLiteRepository) ListDead(ctx context.Context, accountID string) ([]models.PendingChange, error) {
	query := `SELECT ` + changeColumns + ` FROM pending_changes
		WHERE account_id = ? AND retry_count >= ? ORDER BY id`
	return r.list(ctx, query, accountID, models.MaxRetries)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var result []models.PendingChange
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ch)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) PendingIDs(ctx context.Context, accountID string, et models.EntityType) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_id FROM pending_changes WHERE account_id = ? AND entity_type = ?`,
		accountID, et)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ids: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = struct{}{}
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) MarkAttempt(ctx context.Context, id int64, attemptedAt time.Time, cause string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes
		SET retry_count = retry_count + 1, last_error = ?, last_attempt_at = ?
		WHERE id = ?`,
		cause, attemptedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to record attempt for change %d: %w", id, err)
	}
	return requireOneRow(res, id)
}

func (r *SQLiteRepository) MarkRejected(ctx context.Context, id int64, attemptedAt time.Time, cause string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes
		SET retry_count = ?, last_error = ?, last_attempt_at = ?
		WHERE id = ?`,
		models.MaxRetries, cause, attemptedAt.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to mark change %d rejected: %w", id, err)
	}
	return requireOneRow(res, id)
}

func (r *SQLiteRepository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove pending change %d: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) Reset(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes
		SET retry_count = 0, last_error = '', last_attempt_at = NULL
		WHERE id = ? AND retry_count >= ?`,
		id, models.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to reset pending change %d: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("pending change %d: %w", id, shared.ErrNotDead)
	}
	return nil
}

func requireOneRow(res sql.Result, id int64) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("pending change %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
