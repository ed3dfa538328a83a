package drainer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	grainstore "github.com/lattice-run/grainstore"
	"github.com/lattice-run/grainstore/durable"
	"github.com/lattice-run/grainstore/etag"
	"github.com/lattice-run/grainstore/keying"
	"github.com/lattice-run/grainstore/metrics"
)

// Drainer runs the periodic background reconciliation loop of spec.md
// §4.6 over every storage registered in a Registry. One Drainer runs in
// every process; the drain lease in the Cache Adapter ensures only one
// process per (cluster, storage) actually acts in a given cycle.
type Drainer struct {
	reg      *Registry
	interval time.Duration
	log      grainstore.Logger
	hooks    grainstore.Hooks
	metrics  *metrics.Recorder

	// owner is a per-process identifier, exposed through Owner. It is not
	// written into the lease (TryAcquireDrainLease is a plain set-if-absent
	// of a fixed value) and does not gate it.
	owner string
}

// New returns a Drainer polling reg every interval. log and hooks may be
// nil, defaulting to grainstore.NopLogger{} and grainstore.NopHooks{}.
// metrics may be nil to disable metrics publication.
func New(reg *Registry, interval time.Duration, log grainstore.Logger, hooks grainstore.Hooks, rec *metrics.Recorder) *Drainer {
	if log == nil {
		log = grainstore.NopLogger{}
	}
	if hooks == nil {
		hooks = grainstore.NopHooks{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Drainer{reg: reg, interval: interval, log: log, hooks: hooks, metrics: rec, owner: uuid.NewString()}
}

// Run blocks, draining every registered storage once per interval, until
// ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce drains every currently-registered storage exactly once.
func (d *Drainer) RunOnce(ctx context.Context) {
	for _, storage := range d.reg.Names() {
		d.DrainStorage(ctx, storage)
	}
}

// DrainStorage implements spec.md §4.6's DrainStorage procedure for a
// single storage-name. It is exported so tests and operators can trigger
// an out-of-band drain.
func (d *Drainer) DrainStorage(ctx context.Context, storage string) {
	b, ok := d.reg.get(storage)
	if !ok || b.Cache == nil {
		return
	}

	ns := keying.Namespace{ClusterID: b.ClusterID, Storage: storage, Tenant: b.Tenant}
	leaseKey := keying.DrainLeaseKey(b.ClusterID, storage)

	acquired, err := b.Cache.TryAcquireDrainLease(ctx, leaseKey, b.DrainLockTTL)
	if err != nil {
		d.log.Warn("drain lease acquisition failed", grainstore.Fields{"storage": storage, "error": err})
		d.hooks.DrainCycleFailed(storage, err)
		return
	}
	if !acquired {
		return
	}
	defer b.Cache.ReleaseDrainLease(ctx, leaseKey)

	d.hooks.DrainLeaseAcquired(storage)
	if d.metrics != nil {
		d.metrics.DrainLeaseAcquired(storage)
	}

	dirtyKey := keying.DirtySetKey(ns)
	keys, err := b.Cache.PopDirty(ctx, dirtyKey, b.BatchSize)
	if err != nil {
		d.log.Warn("pop dirty failed", grainstore.Fields{"storage": storage, "error": err})
		d.hooks.DrainCycleFailed(storage, err)
		return
	}
	if len(keys) == 0 {
		return
	}

	stateKey := keying.StateMapKey(ns)
	failed := 0
	for _, grainKey := range keys {
		if err := d.drainOne(ctx, b, stateKey, dirtyKey, grainKey); err != nil {
			failed++
			entity := keying.ReverseGrainKey(grainKey)
			d.hooks.DirtyEntryRetried(storage, entity, err)
			d.log.Warn("drain entry failed, retrying next cycle", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
			if err := b.Cache.MarkDirty(ctx, dirtyKey, grainKey); err != nil {
				d.log.Error("re-mark-dirty failed after drain failure; entry may be lost", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
			}
		}
	}

	d.hooks.DrainCycleCompleted(storage, len(keys), failed)
	if d.metrics != nil {
		d.metrics.DrainCycleCompleted(storage, len(keys), failed)
	}
}

func (d *Drainer) drainOne(ctx context.Context, b grainstore.DrainBinding, stateKey, dirtyKey, grainKey string) error {
	entry, ok := b.Cache.Read(ctx, stateKey, grainKey)
	if !ok {
		// Nothing to persist; clear the marker so it doesn't linger.
		b.Cache.ClearDirty(ctx, dirtyKey, grainKey)
		return nil
	}

	entity := keying.ReverseGrainKey(grainKey)
	canonicalID := keying.DocumentID(b.ClusterID, entity)

	rawData, err := b.Registry.Convert(entry.TypeName, entry.Data)
	if err != nil {
		return err
	}

	now := time.Now()
	doc := durable.RawDocument{ID: canonicalID, Data: rawData, LastModified: now}
	if err := b.Durable.Upsert(ctx, doc, b.DurableTenant); err != nil {
		return err
	}

	newTag, err := etag.Compute(now.UnixMilli(), json.RawMessage(entry.Data))
	if err != nil {
		return err
	}
	refreshed := entry
	refreshed.ETag = newTag
	refreshed.LastModifiedMs = now.UnixMilli()
	if err := b.Cache.Write(ctx, stateKey, grainKey, refreshed, b.StateTTL); err != nil {
		d.log.Warn("post-drain cache refresh failed", grainstore.Fields{"storage": b.Storage, "entity": entity, "error": err})
	}

	b.Cache.ClearDirty(ctx, dirtyKey, grainKey)
	return nil
}

// Owner returns this Drainer's process-unique identifier.
func (d *Drainer) Owner() string { return d.owner }
