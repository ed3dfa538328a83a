// Package redis implements cache.Adapter over go-redis/v9: HSET/HGET/HDEL
// for the per-storage state hash, SADD/SREM/SPOP for the dirty set, INCR +
// conditional EXPIRE for the write counter, and SET NX EX / DEL for the
// drain lease. Every "storage" argument is a fully-qualified Redis key
// already built by the keying package; the Adapter itself never derives
// namespacing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	grainstore "github.com/lattice-run/grainstore"
	"github.com/lattice-run/grainstore/cache"
)

const drainLeaseValue = "locked"

// Adapter is a go-redis-backed cache.Adapter.
type Adapter struct {
	rdb redis.UniversalClient
	log grainstore.Logger
}

var _ cache.Adapter = (*Adapter)(nil)

// New returns an Adapter backed by client. A nil log defaults to
// grainstore.NopLogger{}.
func New(client redis.UniversalClient, log grainstore.Logger) *Adapter {
	if log == nil {
		log = grainstore.NopLogger{}
	}
	return &Adapter{rdb: client, log: log}
}

func (a *Adapter) Read(ctx context.Context, storage, entity string) (cache.Entry, bool) {
	res, err := a.rdb.HGet(ctx, storage, entity).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			a.log.Warn("cache read failed", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
		}
		return cache.Entry{}, false
	}
	var env cache.Envelope
	if err := json.Unmarshal([]byte(res), &env); err != nil {
		a.log.Warn("cache entry corrupt", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
		return cache.Entry{}, false
	}
	return cache.FromEnvelope(env), true
}

func (a *Adapter) Write(ctx context.Context, storage, entity string, entry cache.Entry, stateTTL time.Duration) error {
	raw, err := json.Marshal(entry.ToEnvelope())
	if err != nil {
		return err
	}
	if stateTTL <= 0 {
		return a.rdb.HSet(ctx, storage, entity, raw).Err()
	}
	_, err = a.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, storage, entity, raw)
		p.Expire(ctx, storage, stateTTL)
		return nil
	})
	return err
}

func (a *Adapter) Remove(ctx context.Context, storage, entity string) {
	if err := a.rdb.HDel(ctx, storage, entity).Err(); err != nil {
		a.log.Warn("cache remove failed", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
	}
}

func (a *Adapter) MarkDirty(ctx context.Context, storage, entity string) error {
	return a.rdb.SAdd(ctx, storage, entity).Err()
}

func (a *Adapter) ClearDirty(ctx context.Context, storage, entity string) {
	if err := a.rdb.SRem(ctx, storage, entity).Err(); err != nil {
		a.log.Warn("cache clear-dirty failed", grainstore.Fields{"storage": storage, "entity": entity, "error": err})
	}
}

func (a *Adapter) PopDirty(ctx context.Context, storage string, n int) ([]string, error) {
	popped, err := a.rdb.SPopN(ctx, storage, int64(n)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return popped, nil
}

// IncrWriteCounter increments the write counter with INCR and, only when
// the returned value is 1 (the 0->1 transition), sets a 1-second EXPIRE on
// the key in a second round-trip. Later increments leave the TTL alone, so
// the counter expires one second after the first write of a burst.
func (a *Adapter) IncrWriteCounter(ctx context.Context, storage string) int64 {
	var incr *redis.IntCmd
	_, err := a.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, storage)
		return nil
	})
	if err != nil {
		a.log.Warn("write counter increment failed", grainstore.Fields{"storage": storage, "error": err})
		return 0
	}
	v := incr.Val()
	if v == 1 {
		if err := a.rdb.Expire(ctx, storage, time.Second).Err(); err != nil {
			a.log.Warn("write counter expire failed", grainstore.Fields{"storage": storage, "error": err})
		}
	}
	return v
}

func (a *Adapter) TryAcquireDrainLease(ctx context.Context, storage string, ttl time.Duration) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, storage, drainLeaseValue, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (a *Adapter) ReleaseDrainLease(ctx context.Context, storage string) {
	if err := a.rdb.Del(ctx, storage).Err(); err != nil {
		a.log.Warn("drain lease release failed", grainstore.Fields{"storage": storage, "error": err})
	}
}
