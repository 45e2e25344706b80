// Package syncengine drains the pending change queue against the remote
// repositories and drives periodic and connectivity-triggered refreshes of
// the cached repositories.
package syncengine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/cache"
	"github.com/dmitrijs2005/carekeeper/internal/dbx"
	"github.com/dmitrijs2005/carekeeper/internal/events"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/remote"
	"github.com/dmitrijs2005/carekeeper/internal/repositories/pending"
	"github.com/dmitrijs2005/carekeeper/internal/repositories/records"
	"github.com/dmitrijs2005/carekeeper/internal/shared"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Refresher is the slice of a cached repository the engine drives.
type Refresher interface {
	EntityType() models.EntityType
	Refresh(ctx context.Context, accountID string) error
}

// Notifier delivers connectivity transitions; the network monitor
// implements it.
type Notifier interface {
	IsConnected() bool
	Subscribe() <-chan bool
}

// Config bounds the engine's timing. Backoff delays grow exponentially
// from Min to Max and live in memory only: they reset across restarts,
// which is acceptable because drains are also triggered by connectivity
// events, not just the timer.
type Config struct {
	SyncInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
}

func (c *Config) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Minute
	}
}

// Engine owns the pending change queue. All queue access outside the
// cached repositories goes through it.
type Engine struct {
	db         *sql.DB
	remotes    map[models.EntityType]remote.Repository
	refreshers []Refresher
	net        Notifier
	bus        *events.Bus
	locks      *cache.Locks
	log        logging.Logger
	cfg        Config
	now        func() time.Time

	boMu         sync.Mutex
	backoff      map[models.EntityType]retry.Backoff
	backoffUntil map[models.EntityType]time.Time
}

func New(db *sql.DB, remotes map[models.EntityType]remote.Repository, net Notifier,
	bus *events.Bus, locks *cache.Locks, log logging.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		db:           db,
		remotes:      remotes,
		net:          net,
		bus:          bus,
		locks:        locks,
		log:          log,
		cfg:          cfg,
		now:          time.Now,
		backoff:      make(map[models.EntityType]retry.Backoff),
		backoffUntil: make(map[models.EntityType]time.Time),
	}
}

// Register adds a cached repository to the periodic refresh fan-out.
func (e *Engine) Register(r Refresher) {
	e.refreshers = append(e.refreshers, r)
}

// QueueChange is the durable-append contract: safe from any local mutation
// path, coalescing immediate duplicates for the same record.
func (e *Engine) QueueChange(ctx context.Context, ch *models.PendingChange) (models.EnqueueOutcome, error) {
	lock := e.locks.Account(ch.AccountID)
	lock.Lock()
	defer lock.Unlock()
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = e.now().UTC()
	}
	return pending.NewSQLiteRepository(e.db).Enqueue(ctx, ch)
}

// Run drains and refreshes on a timer and whenever connectivity returns,
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	transitions := e.net.Subscribe()
	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case online := <-transitions:
			if !online {
				continue
			}
			e.cycle(ctx)
		case <-ticker.C:
			if !e.net.IsConnected() {
				continue
			}
			e.cycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	if err := e.DrainQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Error(ctx, "queue drain failed", "error", err)
	}
	if err := e.RefreshAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Error(ctx, "refresh failed", "error", err)
	}
}

// DrainQueue processes pending changes per entity type concurrently,
// preserving enqueue order within each type. Cross-type ordering is not
// guaranteed: entity types are independent aggregates.
func (e *Engine) DrainQueue(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for et, repo := range e.remotes {
		g.Go(func() error {
			return e.drainType(ctx, et, repo)
		})
	}
	return g.Wait()
}

func (e *Engine) drainType(ctx context.Context, et models.EntityType, repo remote.Repository) error {
	if until, ok := e.backoffDeadline(et); ok && e.now().Before(until) {
		e.log.Debug(ctx, "skipping drain, backing off", "entity_type", string(et), "until", until)
		return nil
	}

	items, err := pending.NewSQLiteRepository(e.db).ListRetryable(ctx, et)
	if err != nil {
		return err
	}

	for i := range items {
		// cooperative cancellation between entries: an untouched entry
		// simply stays pending
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop := e.processChange(ctx, et, repo, &items[i]); stop {
			return ctx.Err()
		}
	}
	return nil
}

// processChange pushes one entry through pending -> in-flight ->
// confirmed/failed/dead. It returns true when draining this entity type
// should stop for now (transient network failure).
func (e *Engine) processChange(ctx context.Context, et models.EntityType, repo remote.Repository, ch *models.PendingChange) bool {
	err := e.apply(ctx, repo, ch)
	if err == nil {
		e.resetBackoff(et)
		if err := e.confirm(ctx, ch); err != nil {
			e.log.Error(ctx, "failed to confirm change", "change_id", ch.ID, "error", err)
		}
		return false
	}

	if ctx.Err() != nil {
		// cancelled mid-entry: the remote call is atomic from our side,
		// leave the entry pending with no partial state
		return true
	}

	attemptedAt := e.now().UTC()
	pr := pending.NewSQLiteRepository(e.db)

	if errors.Is(err, shared.ErrRemoteRejected) {
		e.log.Warn(ctx, "change permanently rejected", "change_id", ch.ID, "entity_id", ch.EntityID, "error", err)
		if merr := pr.MarkRejected(ctx, ch.ID, attemptedAt, err.Error()); merr != nil {
			e.log.Error(ctx, "failed to mark change rejected", "change_id", ch.ID, "error", merr)
		}
		e.bus.Publish(events.Event{EntityType: et, AccountID: ch.AccountID, Kind: events.KindSyncDead})
		return false
	}

	// transient failure: count the attempt and back the entity type off
	e.log.Warn(ctx, "change attempt failed", "change_id", ch.ID, "retry_count", ch.RetryCount+1, "error", err)
	if merr := pr.MarkAttempt(ctx, ch.ID, attemptedAt, err.Error()); merr != nil {
		e.log.Error(ctx, "failed to record attempt", "change_id", ch.ID, "error", merr)
	}
	if ch.RetryCount+1 >= models.MaxRetries {
		e.bus.Publish(events.Event{EntityType: et, AccountID: ch.AccountID, Kind: events.KindSyncDead})
	}
	e.nextBackoff(et)
	return true
}

// apply performs the remote operation for one entry. Operations are
// idempotent at the id level, so replays after partial failures are safe.
func (e *Engine) apply(ctx context.Context, repo remote.Repository, ch *models.PendingChange) error {
	switch ch.ChangeType {
	case models.ChangeTypeCreate, models.ChangeTypeUpdate:
		var rec models.Record
		if err := json.Unmarshal(ch.Payload, &rec); err != nil {
			return fmt.Errorf("change %d payload: %v: %w", ch.ID, err, shared.ErrRemoteRejected)
		}
		if ch.ChangeType == models.ChangeTypeCreate {
			_, err := repo.Create(ctx, &rec)
			return err
		}
		_, err := repo.Update(ctx, &rec)
		if errors.Is(err, shared.ErrNotFound) {
			// the record vanished server-side; recreate it, ids are ours
			_, err = repo.Create(ctx, &rec)
		}
		return err
	case models.ChangeTypeDelete:
		err := repo.Delete(ctx, ch.EntityID)
		if errors.Is(err, shared.ErrNotFound) {
			// already gone remotely, which is what we wanted
			return nil
		}
		return err
	default:
		return fmt.Errorf("change %d has unknown type %q: %w", ch.ID, ch.ChangeType, shared.ErrRemoteRejected)
	}
}

// confirm finalizes a successful remote operation: the record is marked
// synced (or purged for deletes) and the entry removed, atomically. An
// entry coalesced with a newer edit while the call was in flight is left
// queued so the newer payload still syncs.
func (e *Engine) confirm(ctx context.Context, ch *models.PendingChange) error {
	lock := e.locks.Account(ch.AccountID)
	lock.Lock()
	defer lock.Unlock()

	confirmed := false
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		pr := pending.NewSQLiteRepository(tx)

		current, err := pr.GetByID(ctx, ch.ID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.ChangeType != ch.ChangeType || !bytes.Equal(current.Payload, ch.Payload) {
			return nil
		}

		rr := records.NewSQLiteRepository(tx)
		if ch.ChangeType == models.ChangeTypeDelete {
			if err := rr.Purge(ctx, ch.EntityID); err != nil {
				return err
			}
		} else {
			if err := rr.MarkSynced(ctx, ch.EntityID); err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		if err := pr.Remove(ctx, ch.ID); err != nil {
			return err
		}
		confirmed = true
		return nil
	})
	if err != nil {
		return err
	}

	if confirmed {
		e.bus.Publish(events.Event{EntityType: ch.EntityType, AccountID: ch.AccountID, Kind: events.KindSyncConfirmed})
	}
	return nil
}

// RefreshAll fans RefreshFromRemote across every registered repository for
// every known account. A failing pair does not stop the others.
func (e *Engine) RefreshAll(ctx context.Context) error {
	accounts, err := records.NewSQLiteRepository(e.db).Accounts(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range e.refreshers {
		g.Go(func() error {
			for _, accountID := range accounts {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := r.Refresh(ctx, accountID); err != nil {
					e.log.Warn(ctx, "refresh failed",
						"entity_type", string(r.EntityType()), "account_id", accountID, "error", err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Dead lists the account's changes that exhausted their retries. They are
// surfaced as a reconciliation concern; the underlying local records stay
// visible and editable.
func (e *Engine) Dead(ctx context.Context, accountID string) ([]models.PendingChange, error) {
	return pending.NewSQLiteRepository(e.db).ListDead(ctx, accountID)
}

// ResetDead revives a dead entry for another round of retries.
func (e *Engine) ResetDead(ctx context.Context, id int64) error {
	return pending.NewSQLiteRepository(e.db).Reset(ctx, id)
}

func (e *Engine) backoffDeadline(et models.EntityType) (time.Time, bool) {
	e.boMu.Lock()
	defer e.boMu.Unlock()
	until, ok := e.backoffUntil[et]
	return until, ok
}

func (e *Engine) nextBackoff(et models.EntityType) {
	e.boMu.Lock()
	defer e.boMu.Unlock()
	b, ok := e.backoff[et]
	if !ok {
		b = retry.WithCappedDuration(e.cfg.BackoffMax, retry.NewExponential(e.cfg.BackoffMin))
		e.backoff[et] = b
	}
	d, _ := b.Next()
	e.backoffUntil[et] = e.now().Add(d)
}

func (e *Engine) resetBackoff(et models.EntityType) {
	e.boMu.Lock()
	defer e.boMu.Unlock()
	delete(e.backoff, et)
	delete(e.backoffUntil, et)
}
