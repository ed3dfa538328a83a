package memory

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-run/grainstore/durable"
)

func TestUpsertLoadDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := durable.RawDocument{ID: "c1_u_1", Data: []byte(`{"n":"a"}`), LastModified: time.UnixMilli(1000)}

	if err := s.Upsert(ctx, doc, ""); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Load(ctx, "c1_u_1", "")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if string(got.Data) != `{"n":"a"}` {
		t.Fatalf("Data = %s", got.Data)
	}

	if err := s.Delete(ctx, "c1_u_1", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx, "c1_u_1", ""); ok {
		t.Fatal("expected absent after delete")
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Upsert(ctx, durable.RawDocument{ID: "c1_u_1", Data: []byte(`1`)}, "tenantA")
	if _, ok, _ := s.Load(ctx, "c1_u_1", "tenantB"); ok {
		t.Fatal("expected tenant isolation")
	}
	if _, ok, _ := s.Load(ctx, "c1_u_1", "tenantA"); !ok {
		t.Fatal("expected hit for the writing tenant")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := New()
	if err := s.Delete(context.Background(), "missing", ""); err != nil {
		t.Fatalf("delete of missing doc should be idempotent: %v", err)
	}
}
