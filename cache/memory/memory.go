// Package memory is an in-memory cache.Adapter: a mutex-guarded map with
// lazy TTL expiry checked on read. Used by every Core and Drainer unit
// test in place of a real Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-run/grainstore/cache"
)

type hashEntry struct {
	entry cache.Entry
	exp   time.Time // zero => no TTL
}

type counterEntry struct {
	value int64
	exp   time.Time
}

// Adapter is a mutex-guarded, fully in-process cache.Adapter.
type Adapter struct {
	mu       sync.Mutex
	state    map[string]map[string]hashEntry // storage -> entity -> entry
	dirty    map[string]map[string]struct{}  // storage -> entity set
	counters map[string]counterEntry         // storage -> counter
	leases   map[string]time.Time            // storage -> lease expiry
}

var _ cache.Adapter = (*Adapter)(nil)

// New returns an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{
		state:    make(map[string]map[string]hashEntry),
		dirty:    make(map[string]map[string]struct{}),
		counters: make(map[string]counterEntry),
		leases:   make(map[string]time.Time),
	}
}

func (a *Adapter) Read(_ context.Context, storage, entity string) (cache.Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.state[storage]
	if !ok {
		return cache.Entry{}, false
	}
	e, ok := m[entity]
	if !ok {
		return cache.Entry{}, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(m, entity)
		return cache.Entry{}, false
	}
	return e.entry, true
}

func (a *Adapter) Write(_ context.Context, storage, entity string, entry cache.Entry, stateTTL time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.state[storage]
	if !ok {
		m = make(map[string]hashEntry)
		a.state[storage] = m
	}
	var exp time.Time
	if stateTTL > 0 {
		exp = time.Now().Add(stateTTL)
		// the TTL belongs to the whole state map, as with EXPIRE on a hash
		for k, e := range m {
			e.exp = exp
			m[k] = e
		}
	}
	m[entity] = hashEntry{entry: entry, exp: exp}
	return nil
}

func (a *Adapter) Remove(_ context.Context, storage, entity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.state[storage]; ok {
		delete(m, entity)
	}
}

func (a *Adapter) MarkDirty(_ context.Context, storage, entity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.dirty[storage]
	if !ok {
		s = make(map[string]struct{})
		a.dirty[storage] = s
	}
	s[entity] = struct{}{}
	return nil
}

func (a *Adapter) ClearDirty(_ context.Context, storage, entity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.dirty[storage]; ok {
		delete(s, entity)
	}
}

func (a *Adapter) PopDirty(_ context.Context, storage string, n int) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.dirty[storage]
	if !ok || len(s) == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	for k := range s {
		if len(out) >= n {
			break
		}
		out = append(out, k)
	}
	for _, k := range out {
		delete(s, k)
	}
	return out, nil
}

func (a *Adapter) IncrWriteCounter(_ context.Context, storage string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[storage]
	if !ok || (!c.exp.IsZero() && time.Now().After(c.exp)) {
		c = counterEntry{value: 0}
	}
	c.value++
	if c.value == 1 {
		c.exp = time.Now().Add(time.Second)
	}
	a.counters[storage] = c
	return c.value
}

func (a *Adapter) TryAcquireDrainLease(_ context.Context, storage string, ttl time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if exp, ok := a.leases[storage]; ok && time.Now().Before(exp) {
		return false, nil
	}
	a.leases[storage] = time.Now().Add(ttl)
	return true, nil
}

func (a *Adapter) ReleaseDrainLease(_ context.Context, storage string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.leases, storage)
}

// DirtyCount returns the number of dirty entries for storage, for tests.
func (a *Adapter) DirtyCount(storage string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty[storage])
}
