// Package grainstore implements a durable per-entity state store with a
// coalescing write-behind cache. Each entity ("grain") owns exactly one
// versioned state document. Under normal load reads and writes go straight
// through to a durable document store; under write surges the store
// temporarily absorbs writes in a key/value cache and a background Drainer
// reconciles the cache back to the durable store, preserving durability and
// optimistic-concurrency semantics via content-derived ETags.
//
// Components:
//   - keying: deterministic (cluster, storage, tenant, entity) -> key mapping.
//   - etag: content-derived version tokens.
//   - durable: the durable document store contract, plus Postgres/JSONB and
//     in-memory implementations.
//   - cache: the key/value cache contract, plus Redis, in-memory, and a
//     local-warm-tier decorator.
//   - registry: type-name -> (de)serialize closures so the Drainer can
//     persist dynamically-typed dirty entries.
//   - drainer: the background cache -> durable-store reconciliation loop.
//
// Core[T] ties these together behind three operations: Read, Write, Clear.
package grainstore
