// Package cache defines the key/value Cache Adapter contract the Grain
// Storage Core and Drainer depend on: hash field get/set with optional key
// TTL, set add/remove/atomic-pop-N, string atomic-increment with
// first-increment TTL, conditional set-if-absent with TTL, unconditional
// delete. See cache/redis, cache/memory, and cache/localwarm for concrete
// implementations.
//
// All operations are best-effort from the caller's perspective except
// where noted: Adapter implementations MUST catch their own transport
// errors and return a zero/false/empty result for read-side operations,
// but MUST re-raise errors from MarkDirty and Write (so the Grain Storage
// Core can fall through to the durable path on write-behind failure).
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is a single cached state entry: the payload's canonical-JSON bytes
// plus its ETag, last-modified timestamp, and payload type name (used by
// the Drainer to route dynamically-typed dirty entries through the type
// registry).
type Entry struct {
	Data           json.RawMessage
	ETag           string
	LastModifiedMs int64
	TypeName       string
}

// Envelope is the bit-exact wire format for a cached Entry: a JSON object
// with camelCase field names, matching every implementation across the
// cluster regardless of language.
type Envelope struct {
	SerializedData string `json:"serializedData"`
	TypeString     string `json:"typeString"`
	ETag           string `json:"eTag"`
	LastModified   int64  `json:"lastModified"`
}

// ToEnvelope converts e to its wire form.
func (e Entry) ToEnvelope() Envelope {
	return Envelope{
		SerializedData: string(e.Data),
		TypeString:     e.TypeName,
		ETag:           e.ETag,
		LastModified:   e.LastModifiedMs,
	}
}

// FromEnvelope converts a wire Envelope back to an Entry.
func FromEnvelope(env Envelope) Entry {
	return Entry{
		Data:           json.RawMessage(env.SerializedData),
		ETag:           env.ETag,
		LastModifiedMs: env.LastModified,
		TypeName:       env.TypeString,
	}
}

// Adapter is the key/value Cache Adapter contract.
type Adapter interface {
	// Read deserializes the stored entry for (storage, entity). Returns
	// ok=false on miss, unknown payload type, or any transport error
	// (errors are swallowed and logged by the implementation).
	Read(ctx context.Context, storage, entity string) (entry Entry, ok bool)

	// Write sets the field in the state map for (storage, entity). If a
	// positive stateTTL is configured, it is (re)applied to the map key on
	// every write.
	Write(ctx context.Context, storage, entity string, entry Entry, stateTTL time.Duration) error

	// Remove deletes the field. Errors are logged and swallowed.
	Remove(ctx context.Context, storage, entity string)

	// MarkDirty adds (storage, entity) to the dirty set. Errors are
	// re-raised.
	MarkDirty(ctx context.Context, storage, entity string) error

	// ClearDirty removes (storage, entity) from the dirty set. Errors are
	// swallowed.
	ClearDirty(ctx context.Context, storage, entity string)

	// PopDirty atomically removes and returns up to n members of the dirty
	// set for storage. Members are removed from the set even if the
	// caller crashes before acting on them (SPOP-equivalent).
	PopDirty(ctx context.Context, storage string, n int) ([]string, error)

	// IncrWriteCounter atomically increments the cluster-wide write
	// counter for storage and returns the new value. On the 0->1
	// transition (returned value == 1) a 1-second expiration is set on the
	// counter key. A transport error is treated as a missed increment and
	// returns 0 (non-overflow), per spec.md's advisory-counter semantics.
	IncrWriteCounter(ctx context.Context, storage string) int64

	// TryAcquireDrainLease attempts to atomically set-if-absent the drain
	// lease for storage with the given ttl, returning true iff this call
	// acquired it.
	TryAcquireDrainLease(ctx context.Context, storage string, ttl time.Duration) (bool, error)

	// ReleaseDrainLease unconditionally deletes the lease key.
	ReleaseDrainLease(ctx context.Context, storage string)
}
