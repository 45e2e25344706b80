// Package app wires the sync layer together: local storage, backend client,
// network monitor, cached repositories and the sync engine. The host
// application embeds App and consumes the typed repositories and the event
// bus.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/carekeeper/internal/cache"
	"github.com/dmitrijs2005/carekeeper/internal/config"
	"github.com/dmitrijs2005/carekeeper/internal/events"
	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/netmon"
	"github.com/dmitrijs2005/carekeeper/internal/remote"
	"github.com/dmitrijs2005/carekeeper/internal/storage"
	"github.com/dmitrijs2005/carekeeper/internal/syncengine"
)

// App owns every long-lived component of the sync layer.
type App struct {
	config  *config.Config
	db      *sql.DB
	client  *remote.Client
	monitor *netmon.Monitor
	engine  *syncengine.Engine
	bus     *events.Bus
	log     logging.Logger

	Accounts     *cache.Repository[models.Account]
	Profiles     *cache.Repository[models.Profile]
	Medications  *cache.Repository[models.Medication]
	Appointments *cache.Repository[models.Appointment]
	Contacts     *cache.Repository[models.Contact]
	Notes        *cache.Repository[models.Note]
	TodoLists    *cache.Repository[models.TodoList]
	TodoItems    *cache.Repository[models.TodoItem]
	Reminders    *cache.Repository[models.Reminder]
	Countdowns   *cache.Repository[models.Countdown]
	MoodEntries  *cache.Repository[models.MoodEntry]
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.ServerEndpointAddr, cfg.AuthToken)
	monitor := netmon.New(client, cfg.OnlineCheckInterval, log)
	bus := events.NewBus()
	locks := cache.NewLocks()

	remotes := make(map[models.EntityType]remote.Repository, len(models.AllEntityTypes()))
	for _, et := range models.AllEntityTypes() {
		remotes[et] = client.Repository(et)
	}

	engine := syncengine.New(db, remotes, monitor, bus, locks, log, syncengine.Config{
		SyncInterval: cfg.SyncInterval,
		BackoffMin:   cfg.RetryBackoffMin,
		BackoffMax:   cfg.RetryBackoffMax,
	})

	a := &App{
		config:  cfg,
		db:      db,
		client:  client,
		monitor: monitor,
		engine:  engine,
		bus:     bus,
		log:     log,
	}

	a.Accounts = register[models.Account](a, remotes, locks)
	a.Profiles = register[models.Profile](a, remotes, locks)
	a.Medications = register[models.Medication](a, remotes, locks)
	a.Appointments = register[models.Appointment](a, remotes, locks)
	a.Contacts = register[models.Contact](a, remotes, locks)
	a.Notes = register[models.Note](a, remotes, locks)
	a.TodoLists = register[models.TodoList](a, remotes, locks)
	a.TodoItems = register[models.TodoItem](a, remotes, locks)
	a.Reminders = register[models.Reminder](a, remotes, locks)
	a.Countdowns = register[models.Countdown](a, remotes, locks)
	a.MoodEntries = register[models.MoodEntry](a, remotes, locks)

	return a, nil
}

// register builds the cached repository for one payload type and hooks it
// into the engine's refresh fan-out.
func register[T models.Payload](a *App, remotes map[models.EntityType]remote.Repository, locks *cache.Locks) *cache.Repository[T] {
	var zero T
	r := cache.NewRepository[T](a.db, remotes[zero.EntityType()], a.monitor, a.bus, locks, a.log)
	a.engine.Register(r)
	return r
}

// Bus exposes the change-notification stream for the host UI.
func (a *App) Bus() *events.Bus { return a.bus }

// Engine exposes queue introspection (dead changes, manual resets).
func (a *App) Engine() *syncengine.Engine { return a.engine }

// Run blocks until ctx is cancelled, keeping the connectivity monitor and
// the sync engine going in the background.
func (a *App) Run(ctx context.Context) {
	go a.monitor.Run(ctx)
	a.engine.Run(ctx)
	if err := a.db.Close(); err != nil {
		a.log.Error(ctx, "closing database", "error", err)
	}
}
