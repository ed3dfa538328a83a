// Package asynchook wraps a grainstore.Hooks implementation with a bounded
// queue and a worker pool, so a slow sink (writing to a metrics backend,
// shipping to a log aggregator) never blocks the read/write hot path or the
// drain cycle that invoked it. Events are dropped, not blocked, when the
// queue is full.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    WriteBehindEvery: 10, // sample logs: ~every 10th write-behind event
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	core, _ := grainstore.New(grainstore.Options[User]{
//	    ClusterID: "cluster-1",
//	    Storage:   "user",
//	    Durable:   durableStore,
//	    Cache:     cacheAdapter,
//	    Codec:     codec.JSONCodec[User]{},
//	    Registry:  registry.New(), // required when Cache is set
//	    Hooks:     hooks, // or `raw` if you don't want async dispatch
//	})
package asynchook

import (
	"sync"

	"github.com/lattice-run/grainstore"
)

// Hooks dispatches every grainstore.Hooks callback onto a bounded queue
// drained by a fixed worker pool.
type Hooks struct {
	inner grainstore.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ grainstore.Hooks = (*Hooks)(nil)

// New returns a Hooks wrapping inner, with workers goroutines draining a
// queue of length qlen. workers <= 0 defaults to 1; qlen <= 0 defaults to
// 1024.
func New(inner grainstore.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting new events and waits for the queue to drain.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) WriteBehindEngaged(storage, entity string, writesPerSecond int64) {
	h.try(func() { h.inner.WriteBehindEngaged(storage, entity, writesPerSecond) })
}

func (h *Hooks) WriteFallenThrough(storage, entity string, err error) {
	h.try(func() { h.inner.WriteFallenThrough(storage, entity, err) })
}

func (h *Hooks) ConcurrencyConflict(storage, entity string) {
	h.try(func() { h.inner.ConcurrencyConflict(storage, entity) })
}

func (h *Hooks) MigrationCompleted(storage, entity string, secondStepFailed bool) {
	h.try(func() { h.inner.MigrationCompleted(storage, entity, secondStepFailed) })
}

func (h *Hooks) DrainLeaseAcquired(storage string) {
	h.try(func() { h.inner.DrainLeaseAcquired(storage) })
}

func (h *Hooks) DrainCycleCompleted(storage string, popped, failed int) {
	h.try(func() { h.inner.DrainCycleCompleted(storage, popped, failed) })
}

func (h *Hooks) DrainCycleFailed(storage string, err error) {
	h.try(func() { h.inner.DrainCycleFailed(storage, err) })
}

func (h *Hooks) DirtyEntryRetried(storage, entity string, err error) {
	h.try(func() { h.inner.DirtyEntryRetried(storage, entity, err) })
}
