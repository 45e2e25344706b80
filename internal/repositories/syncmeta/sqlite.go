package syncmeta

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Provision(ctx context.Context, accountID string, types []models.EntityType) error {
	for _, et := range types {
		_, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO sync_metadata (account_id, entity_type) VALUES (?, ?)`,
			accountID, et)
		if err != nil {
			return fmt.Errorf("failed to provision sync metadata for %s/%s: %w", accountID, et, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, accountID string, et models.EntityType) (*models.SyncMetadata, error) {
	var (
		syncedAt sql.NullInt64
		serverTS sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT last_synced_at, last_server_timestamp FROM sync_metadata WHERE account_id = ? AND entity_type = ?`,
		accountID, et).Scan(&syncedAt, &serverTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync metadata %s/%s: %w", accountID, et, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata %s/%s: %w", accountID, et, err)
	}

	meta := &models.SyncMetadata{AccountID: accountID, EntityType: et}
	if syncedAt.Valid {
		ts := time.Unix(0, syncedAt.Int64).UTC()
		meta.LastSyncedAt = &ts
	}
	if serverTS.Valid {
		ts := time.Unix(0, serverTS.Int64).UTC()
		meta.LastServerTimestamp = &ts
	}
	return meta, nil
}

func (r *SQLiteRepository) RecordSync(ctx context.Context, accountID string, et models.EntityType, syncedAt, serverTimestamp time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_metadata SET last_synced_at = ?, last_server_timestamp = ?
		WHERE account_id = ? AND entity_type = ?`,
		syncedAt.UnixNano(), serverTimestamp.UnixNano(), accountID, et)
	if err != nil {
		return fmt.Errorf("failed to record sync for %s/%s: %w", accountID, et, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("sync metadata %s/%s: %w", accountID, et, shared.ErrNotFound)
	}
	return nil
}
