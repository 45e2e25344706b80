// Package remote defines the backend boundary of the sync layer: one CRUD
// repository per entity type, plus a connectivity probe. Every operation is
// idempotent at the record-id level; ids are always client-generated, so a
// retried create must upsert rather than duplicate.
package remote

import (
	"context"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Page is one list response: the canonical records plus the backend's
// timestamp, stored as the incremental high-water mark. DeletedIDs carries
// server-side tombstones and is only populated by incremental queries.
type Page struct {
	Records    []models.Record
	DeletedIDs []string
	ServerTime time.Time
}

// Repository is the per-entity-type network CRUD contract the sync layer
// consumes. Implementations return canonical remote records.
type Repository interface {
	List(ctx context.Context, accountID string) (*Page, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	Create(ctx context.Context, rec *models.Record) (*models.Record, error)
	Update(ctx context.Context, rec *models.Record) (*models.Record, error)
	Delete(ctx context.Context, id string) error
}

// IncrementalLister is an optional capability: listing only records changed
// since a known server timestamp. Callers type-assert for it and fall back
// to full List otherwise.
type IncrementalLister interface {
	ListSince(ctx context.Context, accountID string, since time.Time) (*Page, error)
}

// Pinger probes backend reachability. The network monitor consumes it.
type Pinger interface {
	Ping(ctx context.Context) error
}
