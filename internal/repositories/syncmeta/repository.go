// Package syncmeta implements the Sync Metadata Store: one row per
// (account, entity type) pair tracking the last successful refresh and the
// backend's high-water timestamp for incremental queries.
package syncmeta

import (
	"context"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

type Repository interface {
	// Provision creates the metadata rows for an account, once. Rows that
	// already exist are left untouched.
	Provision(ctx context.Context, accountID string, types []models.EntityType) error

	// Get returns the row for one pair, shared.ErrNotFound when the
	// account was never provisioned for the type.
	Get(ctx context.Context, accountID string, et models.EntityType) (*models.SyncMetadata, error)

	// RecordSync stores the outcome of a successful refresh.
	RecordSync(ctx context.Context, accountID string, et models.EntityType, syncedAt, serverTimestamp time.Time) error
}
