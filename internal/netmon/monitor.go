// Package netmon tracks backend reachability by probing it on a ticker and
// publishes connectivity transitions to subscribers. The sync engine
// subscribes to became-online events to trigger queue drains.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/logging"
	"github.com/dmitrijs2005/carekeeper/internal/remote"
)

// Monitor owns the current is-connected flag. It starts pessimistic
// (offline) until the first successful probe.
type Monitor struct {
	pinger   remote.Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func New(p remote.Pinger, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		pinger:   p,
		interval: interval,
		timeout:  3 * time.Second,
		log:      log,
	}
}

// IsConnected reports the last observed connectivity state.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving the new state on every transition.
// Sends never block; a slow subscriber misses intermediate flips, which is
// fine since only the latest state matters.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Probe performs one reachability check and records the outcome.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(pctx)
	cancel()

	online := err == nil
	m.setOnline(ctx, online)
	return online
}

func (m *Monitor) setOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info(ctx, "connectivity restored")
	} else {
		m.log.Info(ctx, "connectivity lost, switching to offline mode")
	}
	for _, ch := range subs {
		// replace an unread stale state so subscribers always see the
		// latest transition
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- online:
		default:
		}
	}
}
