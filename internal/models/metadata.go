package models

import "time"

// SyncMetadata tracks refresh bookkeeping for one (account, entity type)
// pair. A row is created once when the account is provisioned.
type SyncMetadata struct {
	AccountID  string
	EntityType EntityType

	// LastSyncedAt is the local wall-clock time of the last successful
	// refresh. Nil before the first one.
	LastSyncedAt *time.Time

	// LastServerTimestamp is the backend's high-water mark from the last
	// refresh, enabling incremental since-last-sync queries.
	LastServerTimestamp *time.Time
}
