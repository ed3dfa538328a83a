// Package localwarm decorates a cache.Adapter with a process-local hot-read
// tier: Read checks the local provider.Provider first and only falls through to the wrapped
// adapter (typically Redis) on a local miss, populating the local tier
// afterward. Every other operation - the dirty set, the write counter, the
// drain lease - passes straight through so cluster-wide coordination state
// stays authoritative in the wrapped adapter; a local tier that shadowed
// those would let two processes disagree about overflow state or lease
// ownership.
package localwarm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-run/grainstore/cache"
)

// Provider is the local byte store a decorated Adapter warms reads from.
// provider/bigcache and provider/ristretto both implement it.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Adapter wraps an inner cache.Adapter with a local warm-read tier.
type Adapter struct {
	inner cache.Adapter
	local Provider
	ttl   time.Duration
}

var _ cache.Adapter = (*Adapter)(nil)

// New returns an Adapter serving Read out of local first, falling through
// to inner on a local miss. localTTL bounds how long a warmed entry may
// serve before the next Read re-checks inner; 0 defers entirely to the
// local provider's own eviction policy.
func New(inner cache.Adapter, local Provider, localTTL time.Duration) *Adapter {
	return &Adapter{inner: inner, local: local, ttl: localTTL}
}

func localKey(storage, entity string) string {
	return storage + "\x00" + entity
}

func (a *Adapter) Read(ctx context.Context, storage, entity string) (cache.Entry, bool) {
	key := localKey(storage, entity)
	if raw, ok, err := a.local.Get(ctx, key); err == nil && ok {
		var entry cache.Entry
		if json.Unmarshal(raw, &entry) == nil {
			return entry, true
		}
		// corrupt local entry; drop and fall through
		_ = a.local.Del(ctx, key)
	}

	entry, ok := a.inner.Read(ctx, storage, entity)
	if !ok {
		return cache.Entry{}, false
	}
	if raw, err := json.Marshal(entry); err == nil {
		_, _ = a.local.Set(ctx, key, raw, int64(len(raw)), a.ttl)
	}
	return entry, true
}

// Write invalidates the local entry (rather than warming it from the
// write payload) so a later Read re-fetches from inner and observes
// whatever the write-behind/write-through path actually persisted there.
func (a *Adapter) Write(ctx context.Context, storage, entity string, entry cache.Entry, stateTTL time.Duration) error {
	if err := a.inner.Write(ctx, storage, entity, entry, stateTTL); err != nil {
		return err
	}
	_ = a.local.Del(ctx, localKey(storage, entity))
	return nil
}

func (a *Adapter) Remove(ctx context.Context, storage, entity string) {
	a.inner.Remove(ctx, storage, entity)
	_ = a.local.Del(ctx, localKey(storage, entity))
}

func (a *Adapter) MarkDirty(ctx context.Context, storage, entity string) error {
	return a.inner.MarkDirty(ctx, storage, entity)
}

func (a *Adapter) ClearDirty(ctx context.Context, storage, entity string) {
	a.inner.ClearDirty(ctx, storage, entity)
}

func (a *Adapter) PopDirty(ctx context.Context, storage string, n int) ([]string, error) {
	return a.inner.PopDirty(ctx, storage, n)
}

func (a *Adapter) IncrWriteCounter(ctx context.Context, storage string) int64 {
	return a.inner.IncrWriteCounter(ctx, storage)
}

func (a *Adapter) TryAcquireDrainLease(ctx context.Context, storage string, ttl time.Duration) (bool, error) {
	return a.inner.TryAcquireDrainLease(ctx, storage, ttl)
}

func (a *Adapter) ReleaseDrainLease(ctx context.Context, storage string) {
	a.inner.ReleaseDrainLease(ctx, storage)
}

// Close releases the local provider's resources. The wrapped adapter is
// not owned by Adapter and must be closed by the caller.
func (a *Adapter) Close(ctx context.Context) error {
	return a.local.Close(ctx)
}
