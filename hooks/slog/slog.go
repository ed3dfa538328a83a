// Package sloghook implements grainstore.Hooks over the standard library's
// log/slog, with sampling for the high-volume write-behind event and
// SHA-256 prefix redaction of entity identifiers by default.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/lattice-run/grainstore"
)

// Options tunes sampling and redaction.
type Options struct {
	// WriteBehindEvery samples WriteBehindEngaged, the hottest event under
	// sustained overflow. 0/1 = log all.
	WriteBehindEvery uint64
	// Redact obscures entity identifiers before they hit the log sink.
	// Defaults to an 8-byte SHA-256 prefix.
	Redact func(string) string
}

// Hooks is a grainstore.Hooks backed by a *slog.Logger.
type Hooks struct {
	l    *slog.Logger
	opts Options

	writeBehindCtr atomic.Uint64
}

var _ grainstore.Hooks = (*Hooks)(nil)

// New returns a Hooks logging to l.
func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(entity string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(entity)
	}
	sum := sha256.Sum256([]byte(entity))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) WriteBehindEngaged(storage, entity string, writesPerSecond int64) {
	if h.l == nil || !sample(h.opts.WriteBehindEvery, &h.writeBehindCtr) {
		return
	}
	h.l.Debug("grainstore.write_behind_engaged",
		"storage", storage,
		"entity", h.redact(entity),
		"writes_per_second", writesPerSecond)
}

func (h *Hooks) WriteFallenThrough(storage, entity string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("grainstore.write_fallen_through",
		"storage", storage,
		"entity", h.redact(entity),
		"err", err)
}

func (h *Hooks) ConcurrencyConflict(storage, entity string) {
	if h.l == nil {
		return
	}
	h.l.Info("grainstore.concurrency_conflict",
		"storage", storage,
		"entity", h.redact(entity))
}

func (h *Hooks) MigrationCompleted(storage, entity string, secondStepFailed bool) {
	if h.l == nil {
		return
	}
	h.l.Debug("grainstore.migration_completed",
		"storage", storage,
		"entity", h.redact(entity),
		"second_step_failed", secondStepFailed)
}

func (h *Hooks) DrainLeaseAcquired(storage string) {
	if h.l == nil {
		return
	}
	h.l.Debug("grainstore.drain_lease_acquired", "storage", storage)
}

func (h *Hooks) DrainCycleCompleted(storage string, popped, failed int) {
	if h.l == nil {
		return
	}
	h.l.Info("grainstore.drain_cycle_completed",
		"storage", storage,
		"popped", popped,
		"failed", failed)
}

func (h *Hooks) DrainCycleFailed(storage string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("grainstore.drain_cycle_failed",
		"storage", storage,
		"err", err)
}

func (h *Hooks) DirtyEntryRetried(storage, entity string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("grainstore.dirty_entry_retried",
		"storage", storage,
		"entity", h.redact(entity),
		"err", err)
}
