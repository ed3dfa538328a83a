// Package registry lets the Drainer persist dynamically-typed dirty cache
// entries without being generic over every payload type it has never seen.
// Each Core[T] registers one type-erased Convert closure keyed by its type
// name at construction time; the Drainer looks the closure up by the
// TypeName carried in a cache.Entry and uses it to round-trip cache JSON
// through the owning Core's durable codec.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Convert decodes cache-canonical JSON data into the caller's type and
// re-encodes it as the bytes the durable store's codec expects.
type Convert func(data json.RawMessage) (json.RawMessage, error)

// Registry is a concurrency-safe, append-mostly map from payload type name
// to its registered Convert closure.
type Registry struct {
	mu    sync.RWMutex
	convs map[string]Convert
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{convs: make(map[string]Convert)}
}

// Register associates typeName with conv. Registering the same typeName
// twice overwrites the previous closure; Core[T] construction is expected
// to happen once per typeName at startup, so this is a logic error in
// caller code rather than a runtime condition to guard against.
func (r *Registry) Register(typeName string, conv Convert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[typeName] = conv
}

// Lookup returns the Convert registered for typeName, or ok=false if no
// Core has registered that type.
func (r *Registry) Lookup(typeName string) (Convert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[typeName]
	return c, ok
}

// Convert looks up typeName and applies its closure, or returns an error
// naming the unregistered type.
func (r *Registry) Convert(typeName string, data json.RawMessage) (json.RawMessage, error) {
	conv, ok := r.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("registry: no storage registered for type %q", typeName)
	}
	return conv(data)
}
