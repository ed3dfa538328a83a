package keying

import (
	"context"
	"testing"
)

func TestDocumentID(t *testing.T) {
	if got, want := DocumentID("c1", "u/1"), "c1_u_1"; got != want {
		t.Fatalf("DocumentID = %q, want %q", got, want)
	}
}

func TestLegacyDocumentID(t *testing.T) {
	if got, want := LegacyDocumentID("TestState/migration-1"), "TestState/migration-1"; got != want {
		t.Fatalf("LegacyDocumentID = %q, want %q", got, want)
	}
}

func TestCacheGrainKeyAndReverse(t *testing.T) {
	entity := "u/1"
	key := CacheGrainKey(entity)
	if key != "u_1" {
		t.Fatalf("CacheGrainKey = %q, want u_1", key)
	}
	if got := ReverseGrainKey(key); got != entity {
		t.Fatalf("ReverseGrainKey(%q) = %q, want %q", key, got, entity)
	}
}

func TestReverseGrainKeyOnlyFirstUnderscore(t *testing.T) {
	// caller-supplied key portion may itself contain underscores.
	entity := "TestState/migration-1_extra"
	key := CacheGrainKey(entity) // "TestState_migration-1_extra"
	if got := ReverseGrainKey(key); got != entity {
		t.Fatalf("ReverseGrainKey(%q) = %q, want %q", key, got, entity)
	}
}

func TestStateMapKeyNoTenant(t *testing.T) {
	ns := Namespace{ClusterID: "c1", Storage: "s1"}
	if got, want := StateMapKey(ns), "mgs:c1:s1:state"; got != want {
		t.Fatalf("StateMapKey = %q, want %q", got, want)
	}
}

func TestStateMapKeyWithTenant(t *testing.T) {
	ns := Namespace{ClusterID: "c1", Storage: "s1", Tenant: "acme"}
	if got, want := StateMapKey(ns), "mgs:c1:s1:tenant:acme:state"; got != want {
		t.Fatalf("StateMapKey = %q, want %q", got, want)
	}
}

func TestDirtySetKey(t *testing.T) {
	ns := Namespace{ClusterID: "c1", Storage: "s1", Tenant: "acme"}
	if got, want := DirtySetKey(ns), "mgs:c1:s1:tenant:acme:dirty"; got != want {
		t.Fatalf("DirtySetKey = %q, want %q", got, want)
	}
}

func TestWriteCounterKeyHasNoTenant(t *testing.T) {
	if got, want := WriteCounterKey("c1", "s1"), "mgs:c1:s1:wcount"; got != want {
		t.Fatalf("WriteCounterKey = %q, want %q", got, want)
	}
}

func TestDrainLeaseKeyHasNoTenant(t *testing.T) {
	if got, want := DrainLeaseKey("c1", "s1"), "mgs:c1:s1:drain-lock"; got != want {
		t.Fatalf("DrainLeaseKey = %q, want %q", got, want)
	}
}

func TestTenantFromContextBlankIsEmpty(t *testing.T) {
	ctx := WithTenant(context.Background(), "  ")
	if got := TenantFromContext(ctx); got != "" {
		t.Fatalf("TenantFromContext = %q, want empty", got)
	}
}

func TestTenantFromContextAbsentIsEmpty(t *testing.T) {
	if got := TenantFromContext(context.Background()); got != "" {
		t.Fatalf("TenantFromContext = %q, want empty", got)
	}
}

func TestTenantFromContextPresent(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	if got := TenantFromContext(ctx); got != "acme" {
		t.Fatalf("TenantFromContext = %q, want acme", got)
	}
}
