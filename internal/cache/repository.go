// Package cache implements the offline-first cached repository: reads and
// writes complete against local storage immediately, and every local
// mutation leaves a pending change for the sync engine to reconcile with
// the backend.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/dbx"
	"github.com/dmitrijs2005/carekeeper/internal/events"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/remote"
	"github.com/dmitrijs2005/carekeeper/internal/repositories/pending"
	"github.com/dmitrijs2005/carekeeper/internal/repositories/records"
	"github.com/dmitrijs2005/carekeeper/internal/repositories/syncmeta"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
)

// Connectivity is the slice of the network monitor the repository needs.
type Connectivity interface {
	IsConnected() bool
}

// Source tells RefreshFromRemote callers whether they got cached or fresh
// data. It is a side channel, not an error: offline refreshes succeed.
type Source int

const (
	SourceLocal Source = iota
	SourceRemote
)

// Entity is the typed, caller-facing view of one cached record.
type Entity[T models.Payload] struct {
	ID        string
	AccountID string
	UpdatedAt time.Time
	Synced    bool
	Value     T
}

// Repository is the public offline-first API for one entity type. All
// instances share the database, the per-account locks and the event bus;
// the remote repository is the one matching the payload type.
type Repository[T models.Payload] struct {
	entityType models.EntityType
	db         *sql.DB
	remote     remote.Repository
	net        Connectivity
	bus        *events.Bus
	locks      *Locks
	log        logging.Logger
	now        func() time.Time
}

func NewRepository[T models.Payload](db *sql.DB, rem remote.Repository, net Connectivity,
	bus *events.Bus, locks *Locks, log logging.Logger) *Repository[T] {
	var zero T
	et := zero.EntityType()
	return &Repository[T]{
		entityType: et,
		db:         db,
		remote:     rem,
		net:        net,
		bus:        bus,
		locks:      locks,
		log:        log.With("entity_type", string(et)),
		now:        time.Now,
	}
}

// EntityType returns the entity type this repository serves.
func (r *Repository[T]) EntityType() models.EntityType { return r.entityType }

// List returns all non-deleted local entities for the account. When the
// local cache is empty and the backend is reachable it performs one
// synchronous remote fetch first. Offline and empty is not an error.
func (r *Repository[T]) List(ctx context.Context, accountID string) ([]Entity[T], error) {
	recs, err := records.NewSQLiteRepository(r.db).ListByAccount(ctx, accountID, r.entityType)
	if err != nil {
		return nil, err
	}

	if len(recs) == 0 && r.net.IsConnected() {
		if _, _, err := r.RefreshFromRemote(ctx, accountID); err != nil {
			return nil, err
		}
		recs, err = records.NewSQLiteRepository(r.db).ListByAccount(ctx, accountID, r.entityType)
		if err != nil {
			return nil, err
		}
	}

	return r.decode(ctx, recs), nil
}

// Get is a local-only lookup: it never touches the network, trading
// freshness for deterministic latency.
func (r *Repository[T]) Get(ctx context.Context, id string) (*Entity[T], error) {
	rec, err := records.NewSQLiteRepository(r.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.toEntity(rec)
}

// Create writes the draft locally with a client-generated id (when the
// draft carries none) and queues a create. It returns the local copy
// immediately and never blocks on the network.
func (r *Repository[T]) Create(ctx context.Context, draft Entity[T]) (*Entity[T], error) {
	rec, err := models.NewRecord(draft.ID, draft.AccountID, draft.Value, r.now())
	if err != nil {
		return nil, err
	}

	lock := r.locks.Account(rec.AccountID)
	lock.Lock()
	defer lock.Unlock()

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Upsert(ctx, rec); err != nil {
			return err
		}
		_, err := pending.NewSQLiteRepository(tx).Enqueue(ctx, r.change(rec, models.ChangeTypeCreate))
		return err
	})
	if err != nil {
		return nil, err
	}

	r.publish(rec.AccountID, events.KindLocalWrite)
	return r.toEntity(rec)
}

// Update overwrites the existing record wholesale, refreshes updatedAt and
// queues an update, coalescing with an unconfirmed change for the same id.
func (r *Repository[T]) Update(ctx context.Context, e Entity[T]) (*Entity[T], error) {
	lock := r.locks.Account(e.AccountID)
	lock.Lock()
	defer lock.Unlock()

	var rec *models.Record
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)

		existing, err := rr.GetByID(ctx, e.ID)
		if err != nil {
			return err
		}
		if existing.AccountID != e.AccountID {
			return fmt.Errorf("record %s belongs to another account: %w", e.ID, shared.ErrValidation)
		}

		rec = existing
		rec.UpdatedAt = r.now().UTC()
		rec.IsSynced = false
		if err := rec.EncodePayload(e.Value); err != nil {
			return err
		}
		if err := rr.Upsert(ctx, rec); err != nil {
			return err
		}
		_, err = pending.NewSQLiteRepository(tx).Enqueue(ctx, r.change(rec, models.ChangeTypeUpdate))
		return err
	})
	if err != nil {
		return nil, err
	}

	r.publish(e.AccountID, events.KindLocalWrite)
	return r.toEntity(rec)
}

// Delete tombstones the record immediately and queues a delete. The row is
// only physically removed once the backend confirms, or right away when it
// cancels out an unconfirmed create that never reached the server.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	rec, err := records.NewSQLiteRepository(r.db).GetByID(ctx, id)
	if err != nil {
		return err
	}

	lock := r.locks.Account(rec.AccountID)
	lock.Lock()
	defer lock.Unlock()

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)
		if err := rr.MarkDeleted(ctx, id, r.now().UTC().UnixNano()); err != nil {
			return err
		}
		ch := r.change(rec, models.ChangeTypeDelete)
		ch.Payload = nil
		outcome, err := pending.NewSQLiteRepository(tx).Enqueue(ctx, ch)
		if err != nil {
			return err
		}
		if outcome == models.OutcomeCancelled {
			return rr.Purge(ctx, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.publish(rec.AccountID, events.KindLocalWrite)
	return nil
}

// RefreshFromRemote reconciles the local cache with the backend. Offline
// (or on a transient network failure) it returns the current local state
// with SourceLocal and no error. Records with a queued local change are
// never overwritten: local intent wins until confirmed.
func (r *Repository[T]) RefreshFromRemote(ctx context.Context, accountID string) ([]Entity[T], Source, error) {
	if !r.net.IsConnected() {
		list, err := r.localList(ctx, accountID)
		return list, SourceLocal, err
	}

	page, incremental, err := r.fetch(ctx, accountID)
	if errors.Is(err, shared.ErrNetworkUnavailable) {
		r.log.Warn(ctx, "refresh degraded to local cache", "account_id", accountID, "error", err)
		list, lerr := r.localList(ctx, accountID)
		return list, SourceLocal, lerr
	}
	if err != nil {
		return nil, SourceLocal, err
	}

	lock := r.locks.Account(accountID)
	lock.Lock()
	defer lock.Unlock()

	changed := false
	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rr := records.NewSQLiteRepository(tx)

		pendingIDs, err := pending.NewSQLiteRepository(tx).PendingIDs(ctx, accountID, r.entityType)
		if err != nil {
			return err
		}

		keep := make([]string, 0, len(page.Records))
		for i := range page.Records {
			rec := page.Records[i]
			keep = append(keep, rec.ID)

			if _, queued := pendingIDs[rec.ID]; queued {
				continue
			}

			local, err := rr.GetByID(ctx, rec.ID)
			switch {
			case errors.Is(err, shared.ErrNotFound):
				// new remotely, or tombstoned locally; tombstones always
				// carry a queue entry and were skipped above
			case err != nil:
				return err
			case !rec.UpdatedAt.After(local.UpdatedAt):
				// whole-record last-writer-wins: local copy is newer or
				// identical, keep it
				continue
			}
			if err := rr.Upsert(ctx, &rec); err != nil {
				return err
			}
			changed = true
		}

		if incremental {
			// server-side tombstones arrive explicitly in incremental mode
			for _, id := range page.DeletedIDs {
				if _, queued := pendingIDs[id]; queued {
					continue
				}
				if err := rr.Purge(ctx, id); err != nil {
					return err
				}
				changed = true
			}
		} else {
			// a full listing implies anything synced and absent remotely
			// was deleted server-side
			n, err := rr.PurgeSyncedAbsent(ctx, accountID, r.entityType, keep)
			if err != nil {
				return err
			}
			if n > 0 {
				changed = true
			}
		}

		sm := syncmeta.NewSQLiteRepository(tx)
		if err := sm.Provision(ctx, accountID, []models.EntityType{r.entityType}); err != nil {
			return err
		}
		return sm.RecordSync(ctx, accountID, r.entityType, r.now().UTC(), page.ServerTime)
	})
	if err != nil {
		return nil, SourceLocal, err
	}

	if changed {
		r.publish(accountID, events.KindRemoteRefresh)
	}

	list, err := r.localList(ctx, accountID)
	return list, SourceRemote, err
}

// Refresh is the engine-facing form of RefreshFromRemote.
func (r *Repository[T]) Refresh(ctx context.Context, accountID string) error {
	_, _, err := r.RefreshFromRemote(ctx, accountID)
	return err
}

// fetch lists remote records, incrementally when a server high-water mark
// is known and the remote repository supports it.
func (r *Repository[T]) fetch(ctx context.Context, accountID string) (*remote.Page, bool, error) {
	meta, err := syncmeta.NewSQLiteRepository(r.db).Get(ctx, accountID, r.entityType)
	if err == nil && meta.LastServerTimestamp != nil {
		if il, ok := r.remote.(remote.IncrementalLister); ok {
			page, err := il.ListSince(ctx, accountID, *meta.LastServerTimestamp)
			return page, true, err
		}
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	page, err := r.remote.List(ctx, accountID)
	return page, false, err
}

func (r *Repository[T]) localList(ctx context.Context, accountID string) ([]Entity[T], error) {
	recs, err := records.NewSQLiteRepository(r.db).ListByAccount(ctx, accountID, r.entityType)
	if err != nil {
		return nil, err
	}
	return r.decode(ctx, recs), nil
}

// change builds the queue entry for a mutation, snapshotting the record so
// in-flight payloads are immune to later edits.
func (r *Repository[T]) change(rec *models.Record, ct models.ChangeType) *models.PendingChange {
	var payload json.RawMessage
	if ct != models.ChangeTypeDelete {
		payload, _ = json.Marshal(rec.Snapshot())
	}
	return &models.PendingChange{
		EntityType: r.entityType,
		EntityID:   rec.ID,
		AccountID:  rec.AccountID,
		ChangeType: ct,
		Payload:    payload,
		CreatedAt:  r.now().UTC(),
	}
}

// decode converts records to typed entities, dropping (and logging) any
// corrupt payload rather than failing the whole read.
func (r *Repository[T]) decode(ctx context.Context, recs []models.Record) []Entity[T] {
	result := make([]Entity[T], 0, len(recs))
	for i := range recs {
		e, err := r.toEntity(&recs[i])
		if err != nil {
			r.log.Error(ctx, "dropping corrupt record", "id", recs[i].ID, "error", err)
			continue
		}
		result = append(result, *e)
	}
	return result
}

func (r *Repository[T]) toEntity(rec *models.Record) (*Entity[T], error) {
	value, err := models.DecodePayload[T](rec)
	if err != nil {
		return nil, err
	}
	return &Entity[T]{
		ID:        rec.ID,
		AccountID: rec.AccountID,
		UpdatedAt: rec.UpdatedAt,
		Synced:    rec.IsSynced,
		Value:     value,
	}, nil
}

func (r *Repository[T]) publish(accountID string, kind events.Kind) {
	r.bus.Publish(events.Event{EntityType: r.entityType, AccountID: accountID, Kind: kind})
}
