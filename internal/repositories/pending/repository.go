// Package pending implements the Pending Change Queue: a durable, ordered
// log of outbound mutations not yet confirmed by the backend, with retry
// bookkeeping and coalescing of rapid successive edits.
package pending

import (
	"context"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Repository describes the queue operations. Entries leave the queue only
// on confirmed success or when coalescing cancels them; a dead entry
// (retry count at the cap) is retained inert until reset.
type Repository interface {
	// Enqueue appends ch, coalescing with an unconfirmed entry for the
	// same record: an update replaces the earlier entry's payload in
	// place, a delete over a queued create cancels both sides, a delete
	// over a queued update turns that entry into a delete. Coalescing
	// resets retry bookkeeping, since a fresh user edit is an explicit
	// reset of the earlier failure.
	Enqueue(ctx context.Context, ch *models.PendingChange) (models.EnqueueOutcome, error)

	// GetByID returns a single entry.
	GetByID(ctx context.Context, id int64) (*models.PendingChange, error)

	// ListRetryable returns the non-dead entries of one entity type in
	// insertion order.
	ListRetryable(ctx context.Context, et models.EntityType) ([]models.PendingChange, error)

	// ListDead returns the account's entries that exhausted their retries.
	ListDead(ctx context.Context, accountID string) ([]models.PendingChange, error)

	// PendingIDs returns the set of record ids with any queued entry
	// (dead ones included: local intent survives exhaustion).
	PendingIDs(ctx context.Context, accountID string, et models.EntityType) (map[string]struct{}, error)

	// MarkAttempt records a failed attempt: increments retry_count and
	// stores the cause and time.
	MarkAttempt(ctx context.Context, id int64, attemptedAt time.Time, cause string) error

	// MarkRejected puts the entry straight at the retry cap after a
	// permanent backend refusal.
	MarkRejected(ctx context.Context, id int64, attemptedAt time.Time, cause string) error

	// Remove deletes a confirmed entry.
	Remove(ctx context.Context, id int64) error

	// Reset revives a dead entry for another round of retries. Returns
	// shared.ErrNotDead if the entry still has retries left.
	Reset(ctx context.Context, id int64) error
}
