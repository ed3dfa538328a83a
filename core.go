package grainstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/lattice-run/grainstore/cache"
	"github.com/lattice-run/grainstore/durable"
	"github.com/lattice-run/grainstore/etag"
	"github.com/lattice-run/grainstore/keying"
	"github.com/lattice-run/grainstore/metrics"
	"github.com/lattice-run/grainstore/registry"
)

const (
	defaultThreshold     = 100
	defaultBatchSize     = 50
	defaultDrainInterval = 5 * time.Second
	defaultStateTTL      = 300 * time.Second
	defaultDrainLockTTL  = 30 * time.Second
)

// defaultTypeName returns T's package-qualified name (e.g. "widget.Order"),
// used as Options.TypeName's default. Built from a pointer-to-T rather than
// a zero T so it also resolves when T is itself an interface type, whose
// zero value carries no runtime type for reflect.TypeOf to inspect.
func defaultTypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// Core is the public READ/WRITE/CLEAR surface for one (cluster, storage)
// pair's state documents of type T: read-through, write-through,
// write-behind overflow, ETag enforcement, and legacy-id migration.
type Core[T any] struct {
	clusterID string
	storage   string

	durable  durable.Store[T]
	cacheAdp cache.Adapter
	typeName string
	reg      *registry.Registry

	useTenantPerStorage bool
	checkConcurrency    bool
	wb                  WriteBehindOptions

	log     Logger
	hooks   Hooks
	metrics *metrics.Recorder
}

// New validates opts and returns a ready Core[T]. When opts.Cache is
// non-nil, New registers a type-erased conversion closure for T with
// opts.Registry so the Drainer can round-trip this Core's dirty entries
// without a compile-time dependency on T.
func New[T any](opts Options[T]) (*Core[T], error) {
	if opts.ClusterID == "" {
		return nil, fmt.Errorf("grainstore: ClusterID is required")
	}
	if opts.Storage == "" {
		return nil, fmt.Errorf("grainstore: Storage is required")
	}
	if opts.Durable == nil {
		return nil, fmt.Errorf("grainstore: Durable is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("grainstore: Codec is required")
	}
	if opts.Cache != nil {
		if opts.Registry == nil {
			return nil, fmt.Errorf("grainstore: Registry is required when Cache is set")
		}
		if opts.TypeName == "" {
			opts.TypeName = defaultTypeName[T]()
		}
	}

	c := &Core[T]{
		clusterID: opts.ClusterID,
		storage:   opts.Storage,
		durable:   durable.Store[T]{Raw: opts.Durable, Codec: opts.Codec, JSONNative: opts.JSONNative},
		cacheAdp:  opts.Cache,
		typeName:  opts.TypeName,
		reg:       opts.Registry,

		useTenantPerStorage: opts.UseTenantPerStorage,
		checkConcurrency:    !opts.DisableConcurrencyCheck,

		log:     coalesce[Logger](opts.Log, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		metrics: opts.Metrics,
	}

	c.wb = opts.WriteBehind
	c.wb.Threshold = coalesce(c.wb.Threshold, defaultThreshold)
	c.wb.BatchSize = coalesce(c.wb.BatchSize, defaultBatchSize)
	c.wb.DrainInterval = coalesce(c.wb.DrainInterval, defaultDrainInterval)
	c.wb.StateTTL = coalesce(c.wb.StateTTL, defaultStateTTL)
	c.wb.DrainLockTTL = coalesce(c.wb.DrainLockTTL, defaultDrainLockTTL)

	if opts.Cache != nil {
		durableForRegistry := c.durable
		opts.Registry.Register(opts.TypeName, func(data json.RawMessage) (json.RawMessage, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("grainstore: decode cached %s: %w", opts.TypeName, err)
			}
			return durableForRegistry.EncodeRaw(v)
		})
	}

	return c, nil
}

func (c *Core[T]) durableTenant() string {
	if c.useTenantPerStorage {
		return c.storage
	}
	return ""
}

func (c *Core[T]) ns(ctx context.Context) keying.Namespace {
	return keying.Namespace{ClusterID: c.clusterID, Storage: c.storage, Tenant: keying.TenantFromContext(ctx)}
}

func (c *Core[T]) readThroughEnabled() bool { return !c.wb.DisableReadThrough }
func (c *Core[T]) writeBehindEnabled() bool { return !c.wb.DisableWriteBehind }

// Read implements spec.md §4.5 READ. It never returns an error; any
// failure is logged and Read returns the zero Slot.
func (c *Core[T]) Read(ctx context.Context, entity string) Slot[T] {
	grainKey := keying.CacheGrainKey(entity)

	if c.cacheAdp != nil && c.readThroughEnabled() {
		if entry, ok := c.cacheAdp.Read(ctx, keying.StateMapKey(c.ns(ctx)), grainKey); ok {
			v, err := c.decodeCacheEntry(entry)
			if err != nil {
				c.log.Warn("cache entry undecodable", Fields{"storage": c.storage, "entity": entity, "error": err})
			} else {
				return Slot[T]{Data: v, ETag: entry.ETag, RecordExists: true}
			}
		}
	}

	canonicalID := keying.DocumentID(c.clusterID, entity)
	tenant := c.durableTenant()

	doc, ok, err := c.durable.Load(ctx, canonicalID, tenant)
	if err != nil {
		c.log.Warn("durable load failed", Fields{"storage": c.storage, "entity": entity, "error": err})
		return Slot[T]{}
	}
	if ok {
		return c.populateFromDocument(ctx, entity, doc, true)
	}

	legacyID := keying.LegacyDocumentID(entity)
	legacyDoc, ok, err := c.durable.Load(ctx, legacyID, tenant)
	if err != nil {
		c.log.Warn("legacy durable load failed", Fields{"storage": c.storage, "entity": entity, "error": err})
		return Slot[T]{}
	}
	if !ok {
		return Slot[T]{}
	}

	now := time.Now()
	migrated := durable.Document[T]{ID: canonicalID, Data: legacyDoc.Data, LastModified: now}
	if err := c.durable.Upsert(ctx, migrated, tenant); err != nil {
		c.log.Warn("migration upsert failed", Fields{"storage": c.storage, "entity": entity, "error": err})
		return Slot[T]{}
	}
	secondStepFailed := false
	if err := c.durable.Delete(ctx, legacyID, tenant); err != nil {
		secondStepFailed = true
		c.log.Warn("migration legacy delete failed", Fields{"storage": c.storage, "entity": entity, "error": err})
	}
	c.hooks.MigrationCompleted(c.storage, entity, secondStepFailed)
	return c.populateFromDocument(ctx, entity, migrated, true)
}

func (c *Core[T]) populateFromDocument(ctx context.Context, entity string, doc durable.Document[T], warm bool) Slot[T] {
	tag, err := etag.Compute(doc.LastModified.UnixMilli(), doc.Data)
	if err != nil {
		c.log.Warn("etag computation failed", Fields{"storage": c.storage, "entity": entity, "error": err})
		return Slot[T]{}
	}
	if warm && c.cacheAdp != nil && c.readThroughEnabled() {
		c.warmCache(ctx, entity, doc.Data, tag, doc.LastModified.UnixMilli())
	}
	return Slot[T]{Data: doc.Data, ETag: tag, RecordExists: true}
}

func (c *Core[T]) decodeCacheEntry(entry cache.Entry) (T, error) {
	var zero T
	if entry.TypeName != "" && entry.TypeName != c.typeName {
		return zero, fmt.Errorf("cached entry has type %q, expected %q", entry.TypeName, c.typeName)
	}
	var v T
	if err := json.Unmarshal(entry.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

func (c *Core[T]) warmCache(ctx context.Context, entity string, data T, tag string, lastModifiedMs int64) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warn("cache warm encode failed", Fields{"storage": c.storage, "entity": entity, "error": err})
		return
	}
	entry := cache.Entry{Data: raw, ETag: tag, LastModifiedMs: lastModifiedMs, TypeName: c.typeName}
	if err := c.cacheAdp.Write(ctx, keying.StateMapKey(c.ns(ctx)), keying.CacheGrainKey(entity), entry, c.wb.StateTTL); err != nil {
		c.log.Warn("cache warm write failed", Fields{"storage": c.storage, "entity": entity, "error": err})
	}
}

// Write implements spec.md §4.5 WRITE.
func (c *Core[T]) Write(ctx context.Context, entity string, slot Slot[T]) (Slot[T], error) {
	canonicalID := keying.DocumentID(c.clusterID, entity)
	now := time.Now()
	newTag, err := etag.Compute(now.UnixMilli(), slot.Data)
	if err != nil {
		return slot, fmt.Errorf("grainstore: etag: %w", err)
	}

	if c.cacheAdp != nil && c.writeBehindEnabled() {
		count := c.cacheAdp.IncrWriteCounter(ctx, keying.WriteCounterKey(c.clusterID, c.storage))
		if c.metrics != nil {
			c.metrics.ObserveWriteCounter(c.storage, count)
		}
		if count > c.wb.Threshold {
			if err := c.tryWriteBehind(ctx, entity, slot.Data, newTag, now.UnixMilli()); err != nil {
				c.hooks.WriteFallenThrough(c.storage, entity, err)
			} else {
				c.hooks.WriteBehindEngaged(c.storage, entity, count)
				if c.metrics != nil {
					c.metrics.WriteBehindEngaged(c.storage)
				}
				return Slot[T]{Data: slot.Data, ETag: newTag, RecordExists: true}, nil
			}
		}
	}

	tenant := c.durableTenant()

	if c.checkConcurrency && slot.RecordExists && slot.ETag != "" {
		current, ok, err := c.durable.Load(ctx, canonicalID, tenant)
		if err != nil {
			return slot, &DurableStoreError{Op: "load", Err: err}
		}
		if ok {
			currentTag, err := etag.Compute(current.LastModified.UnixMilli(), current.Data)
			if err != nil {
				return slot, fmt.Errorf("grainstore: etag: %w", err)
			}
			if !etag.Equal(currentTag, slot.ETag) {
				c.hooks.ConcurrencyConflict(c.storage, entity)
				if c.metrics != nil {
					c.metrics.ConcurrencyConflict(c.storage)
				}
				return slot, &ConcurrencyConflictError{Entity: entity, ExpectedETag: slot.ETag, ActualETag: currentTag}
			}
		}
	}

	doc := durable.Document[T]{ID: canonicalID, Data: slot.Data, LastModified: now}
	if err := c.durable.Upsert(ctx, doc, tenant); err != nil {
		return slot, &DurableStoreError{Op: "upsert", Err: err}
	}

	result := Slot[T]{Data: slot.Data, ETag: newTag, RecordExists: true}

	if c.cacheAdp != nil && (c.readThroughEnabled() || c.writeBehindEnabled()) {
		c.warmCache(ctx, entity, slot.Data, newTag, now.UnixMilli())
		c.cacheAdp.ClearDirty(ctx, keying.DirtySetKey(c.ns(ctx)), keying.CacheGrainKey(entity))
	}

	return result, nil
}

// tryWriteBehind attempts the overflow path. Returning a non-nil error
// means the caller must fall through to write-through.
func (c *Core[T]) tryWriteBehind(ctx context.Context, entity string, data T, tag string, lastModifiedMs int64) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	entry := cache.Entry{Data: raw, ETag: tag, LastModifiedMs: lastModifiedMs, TypeName: c.typeName}
	ns := c.ns(ctx)
	grainKey := keying.CacheGrainKey(entity)
	if err := c.cacheAdp.Write(ctx, keying.StateMapKey(ns), grainKey, entry, c.wb.StateTTL); err != nil {
		return err
	}
	if err := c.cacheAdp.MarkDirty(ctx, keying.DirtySetKey(ns), grainKey); err != nil {
		return err
	}
	return nil
}

// Clear implements spec.md §4.5 CLEAR.
func (c *Core[T]) Clear(ctx context.Context, entity string) error {
	canonicalID := keying.DocumentID(c.clusterID, entity)
	if err := c.durable.Delete(ctx, canonicalID, c.durableTenant()); err != nil {
		return &DurableStoreError{Op: "delete", Err: err}
	}
	if c.cacheAdp != nil {
		grainKey := keying.CacheGrainKey(entity)
		ns := c.ns(ctx)
		c.cacheAdp.Remove(ctx, keying.StateMapKey(ns), grainKey)
		c.cacheAdp.ClearDirty(ctx, keying.DirtySetKey(ns), grainKey)
	}
	return nil
}

// StorageName returns the logical storage-name this Core is registered
// under, for use with a Drainer Registry.
func (c *Core[T]) StorageName() string { return c.storage }

// DrainBinding returns the type-erased handle a drainer.Registry needs to
// reconcile this Core's dirty entries. Returns the zero DrainBinding if
// this Core was constructed without a Cache.
func (c *Core[T]) DrainBinding() DrainBinding {
	if c.cacheAdp == nil {
		return DrainBinding{}
	}
	return DrainBinding{
		ClusterID:     c.clusterID,
		Storage:       c.storage,
		DurableTenant: c.durableTenant(),
		Durable:       c.durable.Raw,
		Cache:         c.cacheAdp,
		Registry:      c.reg,
		BatchSize:     c.wb.BatchSize,
		DrainLockTTL:  c.wb.DrainLockTTL,
		StateTTL:      c.wb.StateTTL,
	}
}
