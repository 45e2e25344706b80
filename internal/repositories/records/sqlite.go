package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/dbx"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
)

// SQLiteRepository implements Repository over a DBTX, so the same code runs
// against *sql.DB and inside transactions.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `id, account_id, entity_type, is_synced, locally_deleted, updated_at, payload`

func scanRecord(row interface{ Scan(...any) error }) (*models.Record, error) {
	var (
		rec       models.Record
		updatedAt int64
		payload   []byte
	)
	if err := row.Scan(&rec.ID, &rec.AccountID, &rec.EntityType,
		&rec.IsSynced, &rec.LocallyDeleted, &updatedAt, &payload); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	rec.Payload = payload
	return &rec, nil
}

// Upsert inserts or wholesale-overwrites a record by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			entity_type = excluded.entity_type,
			is_synced = excluded.is_synced,
			locally_deleted = excluded.locally_deleted,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.AccountID, rec.EntityType,
		rec.IsSynced, rec.LocallyDeleted, rec.UpdatedAt.UnixNano(), string(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ? AND locally_deleted = 0`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByAccount(ctx context.Context, accountID string, et models.EntityType) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE account_id = ? AND entity_type = ? AND locally_deleted = 0
		ORDER BY updated_at`
	rows, err := r.db.QueryContext(ctx, query, accountID, et)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", et, err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE records SET is_synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %s synced: %w", id, err)
	}
	return requireOneRow(res, id)
}

// MarkDeleted tombstones the record. updatedAt is the unix-nano mutation
// time, kept for last-writer-wins comparisons while the delete is in flight.
func (r *SQLiteRepository) MarkDeleted(ctx context.Context, id string, updatedAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET locally_deleted = 1, is_synced = 0, updated_at = ? WHERE id = ? AND locally_deleted = 0`,
		updatedAt, id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to purge record %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeSyncedAbsent(ctx context.Context, accountID string, et models.EntityType, keep []string) (int64, error) {
	args := []any{accountID, et}
	query := `DELETE FROM records
		WHERE account_id = ? AND entity_type = ? AND is_synced = 1 AND locally_deleted = 0`
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge absent %s records: %w", et, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) Accounts(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM records ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func requireOneRow(res sql.Result, id string) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("record %s: %w", id, shared.ErrNotFound)
	}
	return nil
}
