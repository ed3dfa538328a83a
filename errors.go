package grainstore

import (
	"errors"
	"fmt"
)

// ConcurrencyConflictError is returned by Write when concurrency checking is
// on (Options.DisableConcurrencyCheck is false),
// the slot claims an existing record, and the record's current ETag no
// longer matches the one the caller observed. No state is mutated.
type ConcurrencyConflictError struct {
	Entity       string
	ExpectedETag string
	ActualETag   string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("grainstore: concurrency conflict for %q: expected etag %q, found %q",
		e.Entity, e.ExpectedETag, e.ActualETag)
}

// DurableStoreError wraps an error surfaced by the durable store adapter on
// a write-through Write or on Clear. The underlying error is unwrapped
// unchanged.
type DurableStoreError struct {
	Op  string
	Err error
}

func (e *DurableStoreError) Error() string {
	return fmt.Sprintf("grainstore: durable store %s failed: %v", e.Op, e.Err)
}

func (e *DurableStoreError) Unwrap() error { return e.Err }

// IsConcurrencyConflict reports whether err is (or wraps) a
// ConcurrencyConflictError.
func IsConcurrencyConflict(err error) bool {
	var c *ConcurrencyConflictError
	return errors.As(err, &c)
}

// IsDurableStoreError reports whether err is (or wraps) a DurableStoreError.
func IsDurableStoreError(err error) bool {
	var d *DurableStoreError
	return errors.As(err, &d)
}
