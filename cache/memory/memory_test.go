package memory

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-run/grainstore/cache"
)

func TestWriteReadRoundTrip(t *testing.T) {
	a := New()
	ctx := context.Background()
	entry := cache.Entry{Data: []byte(`{"n":"a"}`), ETag: "e1", LastModifiedMs: 1000, TypeName: "user"}
	if err := a.Write(ctx, "s1", "u_1", entry, 0); err != nil {
		t.Fatal(err)
	}
	got, ok := a.Read(ctx, "s1", "u_1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ETag != "e1" {
		t.Fatalf("ETag = %q", got.ETag)
	}
}

func TestReadMiss(t *testing.T) {
	a := New()
	if _, ok := a.Read(context.Background(), "s1", "missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestStateTTLExpiry(t *testing.T) {
	a := New()
	ctx := context.Background()
	_ = a.Write(ctx, "s1", "u_1", cache.Entry{ETag: "e1"}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := a.Read(ctx, "s1", "u_1"); ok {
		t.Fatal("expected expiry")
	}
}

func TestDirtySetLifecycle(t *testing.T) {
	a := New()
	ctx := context.Background()
	if err := a.MarkDirty(ctx, "s1", "u_1"); err != nil {
		t.Fatal(err)
	}
	if a.DirtyCount("s1") != 1 {
		t.Fatal("expected one dirty entry")
	}
	a.ClearDirty(ctx, "s1", "u_1")
	if a.DirtyCount("s1") != 0 {
		t.Fatal("expected dirty set to be empty")
	}
}

func TestPopDirtyIsAtomicRemoval(t *testing.T) {
	a := New()
	ctx := context.Background()
	for _, e := range []string{"u_1", "u_2", "u_3"} {
		_ = a.MarkDirty(ctx, "s1", e)
	}
	popped, err := a.PopDirty(ctx, "s1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(popped) != 2 {
		t.Fatalf("expected 2 popped, got %d", len(popped))
	}
	if a.DirtyCount("s1") != 1 {
		t.Fatalf("expected 1 remaining dirty entry, got %d", a.DirtyCount("s1"))
	}
}

func TestWriteCounterFirstIncrementSetsExpiry(t *testing.T) {
	a := New()
	ctx := context.Background()
	if got := a.IncrWriteCounter(ctx, "s1"); got != 1 {
		t.Fatalf("first increment = %d, want 1", got)
	}
	a.mu.Lock()
	exp := a.counters["s1"].exp
	a.mu.Unlock()
	if exp.IsZero() || time.Until(exp) > time.Second {
		t.Fatalf("counter expiry after first increment = %v, want about 1s from now", exp)
	}
	if got := a.IncrWriteCounter(ctx, "s1"); got != 2 {
		t.Fatalf("second increment = %d, want 2", got)
	}
}

func TestWriteCounterResetsAfterTTL(t *testing.T) {
	a := New()
	ctx := context.Background()
	a.mu.Lock()
	a.counters["s1"] = counterEntry{value: 5, exp: time.Now().Add(-time.Second)}
	a.mu.Unlock()
	if got := a.IncrWriteCounter(ctx, "s1"); got != 1 {
		t.Fatalf("post-expiry increment = %d, want 1", got)
	}
}

func TestDrainLeaseExclusivity(t *testing.T) {
	a := New()
	ctx := context.Background()
	ok1, err := a.TryAcquireDrainLease(ctx, "s1", time.Minute)
	if err != nil || !ok1 {
		t.Fatalf("first acquire: ok=%v err=%v", ok1, err)
	}
	ok2, err := a.TryAcquireDrainLease(ctx, "s1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok2 {
		t.Fatal("second acquire should fail while lease is held")
	}
	a.ReleaseDrainLease(ctx, "s1")
	ok3, err := a.TryAcquireDrainLease(ctx, "s1", time.Minute)
	if err != nil || !ok3 {
		t.Fatalf("acquire after release: ok=%v err=%v", ok3, err)
	}
}
