package syncmeta

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_metadata (
  account_id TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  last_synced_at INTEGER,
  last_server_timestamp INTEGER,
  PRIMARY KEY (account_id, entity_type)
);`)
	require.NoError(t, err)
	return db
}

func TestProvision_CreatesRowsOnce(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	types := []models.EntityType{models.EntityTypeMedication, models.EntityTypeNote}
	require.NoError(t, r.Provision(ctx, "acc1", types))

	meta, err := r.Get(ctx, "acc1", models.EntityTypeMedication)
	require.NoError(t, err)
	assert.Nil(t, meta.LastSyncedAt)
	assert.Nil(t, meta.LastServerTimestamp)

	// provisioning again must not reset recorded state
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, r.RecordSync(ctx, "acc1", models.EntityTypeMedication, now, now.Add(-time.Second)))
	require.NoError(t, r.Provision(ctx, "acc1", types))

	meta, err = r.Get(ctx, "acc1", models.EntityTypeMedication)
	require.NoError(t, err)
	require.NotNil(t, meta.LastSyncedAt)
	assert.Equal(t, now, *meta.LastSyncedAt)
}

func TestGet_Unprovisioned(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.Get(context.Background(), "acc1", models.EntityTypeNote)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordSync_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Provision(ctx, "acc1", []models.EntityType{models.EntityTypeContact}))

	syncedAt := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	serverTS := syncedAt.Add(-250 * time.Millisecond)
	require.NoError(t, r.RecordSync(ctx, "acc1", models.EntityTypeContact, syncedAt, serverTS))

	meta, err := r.Get(ctx, "acc1", models.EntityTypeContact)
	require.NoError(t, err)
	require.NotNil(t, meta.LastSyncedAt)
	require.NotNil(t, meta.LastServerTimestamp)
	assert.Equal(t, syncedAt, *meta.LastSyncedAt)
	assert.Equal(t, serverTS, *meta.LastServerTimestamp)
}

func TestRecordSync_Unprovisioned(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	err := r.RecordSync(context.Background(), "acc1", models.EntityTypeContact, time.Now(), time.Now())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
