// Package durable defines the durable document-store contract the Grain
// Storage Core depends on: typed load / upsert / delete of a state
// document, optionally scoped to a database tenant. See durable/postgres
// and durable/memory for concrete implementations.
package durable

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lattice-run/grainstore/codec"
)

// RawDocument is the tenant-scoped, type-erased form of a state document:
// Data is always canonical-JSON-compatible bytes, regardless of which
// payload codec a particular Store[T] uses for its column encoding. The
// Drainer operates exclusively on RawDocument/RawStore, since it pops
// dirty entries without knowing their Go payload type at compile time.
type RawDocument struct {
	ID           string
	Data         json.RawMessage
	LastModified time.Time
}

// RawStore is the type-erased durable store contract. Every Store[T]
// implementation is backed by a RawStore.
type RawStore interface {
	// Load returns the document at id, or ok=false if absent.
	Load(ctx context.Context, id string, tenant string) (doc RawDocument, ok bool, err error)
	// Upsert atomically replaces (or creates) the document. Durable on
	// success.
	Upsert(ctx context.Context, doc RawDocument, tenant string) error
	// Delete is idempotent; returns after durability.
	Delete(ctx context.Context, id string, tenant string) error
}

// Store is the typed façade Core[T] uses. Data is encoded/decoded through
// Codec for the durable column; JSONNative must be true iff Codec.Encode
// already produces valid JSON bytes (e.g. codec.JSONCodec[T]) — false for
// binary codecs (CBOR, Msgpack, Protobuf), whose bytes are instead wrapped
// as a base64 JSON string so they still fit a RawDocument's json.RawMessage
// column. This keeps the ETag computation (always over canonical JSON of
// the logical payload, computed independently by the caller) decoupled
// from whichever encoding is chosen for at-rest storage.
type Store[T any] struct {
	Raw        RawStore
	Codec      codec.Codec[T]
	JSONNative bool
}

// Document is the typed form of a state document returned to callers.
type Document[T any] struct {
	ID           string
	Data         T
	LastModified time.Time
}

// EncodeRaw runs v through Codec and wraps the result as a RawDocument's
// json.RawMessage column, per JSONNative's rule.
func (s Store[T]) EncodeRaw(v T) (json.RawMessage, error) {
	b, err := s.Codec.Encode(v)
	if err != nil {
		return nil, err
	}
	if s.JSONNative {
		return json.RawMessage(b), nil
	}
	// encoding/json marshals a []byte as a base64 string automatically;
	// unmarshaling a JSON string back into []byte reverses it.
	return json.Marshal(b)
}

// DecodeRaw reverses EncodeRaw.
func (s Store[T]) DecodeRaw(raw json.RawMessage) (T, error) {
	var zero T
	if s.JSONNative {
		return s.Codec.Decode(raw)
	}
	var b []byte
	if err := json.Unmarshal(raw, &b); err != nil {
		return zero, err
	}
	return s.Codec.Decode(b)
}

// Load returns the current document, or ok=false if absent.
func (s Store[T]) Load(ctx context.Context, id string, tenant string) (Document[T], bool, error) {
	raw, ok, err := s.Raw.Load(ctx, id, tenant)
	if err != nil || !ok {
		return Document[T]{}, false, err
	}
	v, err := s.DecodeRaw(raw.Data)
	if err != nil {
		return Document[T]{}, false, err
	}
	return Document[T]{ID: raw.ID, Data: v, LastModified: raw.LastModified}, true, nil
}

// Upsert atomically replaces (or creates) doc.
func (s Store[T]) Upsert(ctx context.Context, doc Document[T], tenant string) error {
	data, err := s.EncodeRaw(doc.Data)
	if err != nil {
		return err
	}
	return s.Raw.Upsert(ctx, RawDocument{ID: doc.ID, Data: data, LastModified: doc.LastModified}, tenant)
}

// Delete is idempotent.
func (s Store[T]) Delete(ctx context.Context, id string, tenant string) error {
	return s.Raw.Delete(ctx, id, tenant)
}
