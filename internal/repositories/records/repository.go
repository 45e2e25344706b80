// Package records implements the Local Record Store: durable, per-entity
// cached records plus the isSynced/locallyDeleted bookkeeping flags. It has
// no knowledge of the network.
package records

import (
	"context"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Repository describes the Local Record Store operations. Tombstoned
// records are invisible to every read; physical removal happens only
// through Purge once a remote delete is confirmed.
type Repository interface {
	// Upsert inserts a new record or overwrites an existing one by id.
	Upsert(ctx context.Context, rec *models.Record) error

	// GetByID returns a record by id. Missing or tombstoned rows yield
	// shared.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// ListByAccount returns all non-deleted records of one entity type
	// for the account, in updated_at order.
	ListByAccount(ctx context.Context, accountID string, et models.EntityType) ([]models.Record, error)

	// MarkSynced flips is_synced after the backend confirmed the record's
	// current state.
	MarkSynced(ctx context.Context, id string) error

	// MarkDeleted tombstones a record. The row stays until Purge.
	MarkDeleted(ctx context.Context, id string, updatedAt int64) error

	// Purge physically removes a record.
	Purge(ctx context.Context, id string) error

	// PurgeSyncedAbsent removes rows of the given account and type that
	// are already synced, not tombstoned, and whose id is not in keep.
	// Unsynced rows are presumed not-yet-created server-side and survive.
	PurgeSyncedAbsent(ctx context.Context, accountID string, et models.EntityType, keep []string) (int64, error)

	// Accounts returns the distinct account ids present in the store.
	Accounts(ctx context.Context) ([]string, error)
}
