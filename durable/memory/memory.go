// Package memory is an in-memory durable.RawStore, grounded on the
// teacher's cache_test.go in-memory provider fake. It is intended for
// tests and for single-process deployments that don't need real
// durability across restarts.
package memory

import (
	"context"
	"sync"

	"github.com/lattice-run/grainstore/durable"
)

type key struct {
	tenant string
	id     string
}

// Store is a mutex-guarded map implementing durable.RawStore.
type Store struct {
	mu   sync.Mutex
	docs map[key]durable.RawDocument
}

var _ durable.RawStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[key]durable.RawDocument)}
}

func (s *Store) Load(_ context.Context, id string, tenant string) (durable.RawDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key{tenant, id}]
	return doc, ok, nil
}

func (s *Store) Upsert(_ context.Context, doc durable.RawDocument, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// store a defensive copy of Data so later caller mutation can't corrupt it.
	cp := make([]byte, len(doc.Data))
	copy(cp, doc.Data)
	doc.Data = cp
	s.docs[key{tenant, doc.ID}] = doc
	return nil
}

func (s *Store) Delete(_ context.Context, id string, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key{tenant, id})
	return nil
}

// Len returns the number of documents currently stored, for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
