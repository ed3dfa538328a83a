package grainstore

import (
	"time"

	"github.com/lattice-run/grainstore/cache"
	"github.com/lattice-run/grainstore/codec"
	"github.com/lattice-run/grainstore/durable"
	"github.com/lattice-run/grainstore/metrics"
	"github.com/lattice-run/grainstore/registry"
)

// Slot is the mutable record a READ/WRITE/CLEAR call reads and writes: the
// caller's view of an entity's current state plus the ETag it was read
// with, so a subsequent WRITE can assert optimistic concurrency against it.
type Slot[T any] struct {
	Data         T
	ETag         string // "" => no known prior version
	RecordExists bool
}

// WriteBehindOptions tunes the overflow absorption path. Zero values are
// replaced with the defaults noted on each field.
type WriteBehindOptions struct {
	// Threshold is the cluster-wide writes/sec above which WRITE switches
	// to the write-behind path. Comparison is strictly greater-than.
	// Default 100.
	Threshold int64
	// BatchSize is the maximum number of dirty entries popped per drain
	// cycle per storage. Default 50.
	BatchSize int
	// DrainInterval defaults to 5s. Core does not read it and it is not part
	// of DrainBinding: the time between drain cycles is the interval passed
	// to drainer.New.
	DrainInterval time.Duration
	// StateTTL is (re)applied to the state hash on every write. Default
	// 300s: a zero value is replaced by the default, so expiration is
	// disabled with a negative value, not with 0.
	StateTTL time.Duration
	// DrainLockTTL bounds how long one process may hold the per-storage
	// drain lease. Default 30s.
	DrainLockTTL time.Duration
	// DisableWriteBehind turns off the overflow path; WRITE always takes
	// the write-through path regardless of the write counter.
	// Default false (write-behind enabled).
	DisableWriteBehind bool
	// DisableReadThrough turns off the cache-first READ and cache warming
	// on load from the durable store. Default false (read-through
	// enabled).
	DisableReadThrough bool
}

// Options configures a Core[T].
type Options[T any] struct {
	// ClusterID scopes every id and key this Core derives. Required.
	ClusterID string
	// Storage is this Core's logical storage-name: its own cache
	// namespace, drain lease, and (optionally) durable-store tenant.
	// Required.
	Storage string

	Durable durable.RawStore // required
	Cache   cache.Adapter    // nil => cache tier disabled entirely
	Codec   codec.Codec[T]   // required; used for the durable-store payload

	// JSONNative must be true iff Codec.Encode already produces valid JSON
	// bytes (e.g. codec.JSONCodec[T]); false for binary codecs (CBOR, Msgpack,
	// Protobuf), whose bytes are instead base64-wrapped. See durable.Store.
	JSONNative bool

	// TypeName identifies T in the cache envelope and the Drainer's type
	// registry. Only consulted when Cache is non-nil; if empty, defaults
	// to T's package-qualified type name via reflect.TypeOf.
	TypeName string
	Registry *registry.Registry // required when Cache is non-nil

	// UseTenantPerStorage opens every durable-store session with
	// tenant = Storage instead of the default (blank) tenant.
	UseTenantPerStorage bool
	// DisableConcurrencyCheck turns off ETag matching on write-through
	// updates. Default false (concurrency checking enabled).
	DisableConcurrencyCheck bool

	WriteBehind WriteBehindOptions

	Log     Logger
	Hooks   Hooks
	Metrics *metrics.Recorder // nil disables metrics publication
}

// DrainBinding is everything a package drainer.Drainer needs to reconcile
// one Core[T]'s dirty entries, with T erased. Application wiring code
// registers the result of Core.DrainBinding with a drainer.Registry;
// Core itself never imports package drainer, so this type is the sole
// coupling surface between the two.
type DrainBinding struct {
	ClusterID string
	Storage   string
	// DurableTenant is the tenant string used for durable-store sessions
	// (see UseTenantPerStorage), distinct from the request-scoped cache
	// tenant below.
	DurableTenant string
	// Tenant is the request-scoped ambient cache tenant this binding
	// drains. The Drainer has no request context of its own, so it only
	// ever drains the blank-tenant dirty set; per-tenant write-behind
	// buffers are a known limitation (see DESIGN.md).
	Tenant string

	Durable  durable.RawStore
	Cache    cache.Adapter
	Registry *registry.Registry

	BatchSize    int
	DrainLockTTL time.Duration
	StateTTL     time.Duration
}
