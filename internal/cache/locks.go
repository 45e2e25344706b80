package cache

import "sync"

// Locks serializes mutations per account: local record and queue writes for
// one account never race, while accounts proceed independently. One shared
// instance is handed to every repository and to the sync engine.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{m: make(map[string]*sync.Mutex)}
}

// Account returns the mutex guarding one account's writes.
func (l *Locks) Account(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.m[id]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.m[id] = m
	return m
}
