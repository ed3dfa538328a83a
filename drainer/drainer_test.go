package drainer

import (
	"context"
	"testing"
	"time"

	grainstore "github.com/lattice-run/grainstore"
	cmem "github.com/lattice-run/grainstore/cache/memory"
	"github.com/lattice-run/grainstore/codec"
	dmem "github.com/lattice-run/grainstore/durable/memory"
	"github.com/lattice-run/grainstore/keying"
	"github.com/lattice-run/grainstore/registry"
)

type widget struct {
	N string `json:"n"`
	V int    `json:"v"`
}

func TestDrainStorageReconciliatesDirtyEntries(t *testing.T) {
	ctx := context.Background()
	ds := dmem.New()
	ca := cmem.New()
	reg := registry.New()

	core, err := grainstore.New(grainstore.Options[widget]{
		ClusterID: "c1", Storage: "s1",
		Durable: ds, Cache: ca,
		Codec: codec.JSONCodec[widget]{}, JSONNative: true,
		TypeName: "widget", Registry: reg,
		WriteBehind: grainstore.WriteBehindOptions{Threshold: 0, BatchSize: 10, DrainLockTTL: 30 * time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}

	slot, err := core.Write(ctx, "u/1", grainstore.Slot[widget]{Data: widget{N: "w", V: 7}})
	if err != nil {
		t.Fatal(err)
	}
	if !slot.RecordExists {
		t.Fatal("expected overflow write to succeed")
	}
	if _, ok, _ := ds.Load(ctx, "c1_u_1", ""); ok {
		t.Fatal("document should not be durable before drain")
	}

	dr := NewRegistry()
	dr.Register(core.DrainBinding())

	d := New(dr, time.Second, nil, nil, nil)
	d.DrainStorage(ctx, "s1")

	doc, ok, err := ds.Load(ctx, "c1_u_1", "")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if string(doc.Data) != `{"n":"w","v":7}` {
		t.Fatalf("doc.Data = %s", doc.Data)
	}

	dirtyKey := keying.DirtySetKey(keying.Namespace{ClusterID: "c1", Storage: "s1"})
	remaining, err := ca.PopDirty(ctx, dirtyKey, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("dirty set should be empty after drain, got %v", remaining)
	}
}

func TestDrainStorageSkipsWhenLeaseHeld(t *testing.T) {
	ctx := context.Background()
	ds := dmem.New()
	ca := cmem.New()
	reg := registry.New()

	core, err := grainstore.New(grainstore.Options[widget]{
		ClusterID: "c1", Storage: "s1",
		Durable: ds, Cache: ca,
		Codec: codec.JSONCodec[widget]{}, JSONNative: true,
		TypeName: "widget", Registry: reg,
		WriteBehind: grainstore.WriteBehindOptions{Threshold: 0, BatchSize: 10, DrainLockTTL: time.Minute},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := core.Write(ctx, "u/1", grainstore.Slot[widget]{Data: widget{N: "w", V: 7}}); err != nil {
		t.Fatal(err)
	}

	dr := NewRegistry()
	dr.Register(core.DrainBinding())

	leaseKey := keying.DrainLeaseKey("c1", "s1")
	held, err := ca.TryAcquireDrainLease(ctx, leaseKey, time.Minute)
	if err != nil || !held {
		t.Fatalf("expected to hold lease: ok=%v err=%v", held, err)
	}

	d := New(dr, time.Second, nil, nil, nil)
	d.DrainStorage(ctx, "s1")

	if _, ok, _ := ds.Load(ctx, "c1_u_1", ""); ok {
		t.Fatal("drain should have been skipped while lease is held elsewhere")
	}
}

func TestDrainStorageUnregisteredStorageIsNoop(t *testing.T) {
	dr := NewRegistry()
	d := New(dr, time.Second, nil, nil, nil)
	d.DrainStorage(context.Background(), "unknown")
}
