// Package events carries entity-type-scoped data-changed notifications from
// the core to the host application, which refreshes its views in response.
// This is the only outward interface of the core besides the repositories.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

// Kind classifies what caused a notification.
type Kind string

const (
	// KindLocalWrite follows any successful local create/update/delete.
	KindLocalWrite Kind = "local_write"
	// KindRemoteRefresh follows a reconciliation that changed local state.
	KindRemoteRefresh Kind = "remote_refresh"
	// KindSyncConfirmed follows the backend confirming a queued change.
	KindSyncConfirmed Kind = "sync_confirmed"
	// KindSyncDead reports a change that exhausted its retries and needs
	// user attention. Local data is never discarded with it.
	KindSyncDead Kind = "sync_dead"
)

// Event is one notification.
type Event struct {
	EntityType models.EntityType
	AccountID  string
	Kind       Kind
}

// Bus is an in-process fan-out of Events. Publish never blocks: when a
// subscriber's buffer is full the event is dropped and counted, since every
// consumer re-reads state from the repositories anyway.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel plus a cancel function that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
