// Package keying implements the deterministic mapping from
// (cluster, storage, tenant, entity-id) to durable-store document ids and
// cache key-space keys. All functions are pure.
package keying

import (
	"context"
	"strings"
)

// Namespace scopes a set of keys to a cluster, a logical storage, and an
// optional request-scoped tenant. Tenant is orthogonal to the durable
// store's own database-tenant (see durable.Store's tenant parameter).
type Namespace struct {
	ClusterID string
	Storage   string
	Tenant    string // empty => no tenant component
}

// DocumentID returns the canonical durable-store document id for entity:
// "{cluster}_{entity-with-'/'-replaced-by-'_'}".
func DocumentID(clusterID, entity string) string {
	return clusterID + "_" + CacheGrainKey(entity)
}

// LegacyDocumentID returns the pre-migration document id: the raw entity
// identifier, unmodified. Only ever read, never written.
func LegacyDocumentID(entity string) string {
	return entity
}

// CacheGrainKey returns entity with '/' replaced by '_', the cache-safe form
// used as both the state-map field and a component of DocumentID.
func CacheGrainKey(entity string) string {
	return strings.ReplaceAll(entity, "/", "_")
}

// ReverseGrainKey reconstructs an entity identifier from a canonical
// cache-safe grain key, reversing CacheGrainKey. Used by the Drainer, which
// only ever sees grain keys popped from the dirty set. Entity identifiers
// are two-part opaque strings "{type-prefix}/{key}"; only the first '_' is
// reversed to '/' so that keys containing further underscores in the
// caller-supplied key portion round-trip unchanged.
func ReverseGrainKey(grainKey string) string {
	return strings.Replace(grainKey, "_", "/", 1)
}

func tenantSuffix(tenant string) string {
	if tenant == "" {
		return ""
	}
	return ":tenant:" + tenant
}

// StateMapKey returns the cache key for the per-(storage, tenant) state
// hash: "mgs:{cluster}:{storage}[:tenant:{tenant}]:state".
func StateMapKey(ns Namespace) string {
	return "mgs:" + ns.ClusterID + ":" + ns.Storage + tenantSuffix(ns.Tenant) + ":state"
}

// DirtySetKey returns the cache key for the per-(storage, tenant) dirty set:
// "mgs:{cluster}:{storage}[:tenant:{tenant}]:dirty".
func DirtySetKey(ns Namespace) string {
	return "mgs:" + ns.ClusterID + ":" + ns.Storage + tenantSuffix(ns.Tenant) + ":dirty"
}

// WriteCounterKey returns the cache key for the cluster-wide,
// tenant-agnostic write counter: "mgs:{cluster}:{storage}:wcount". Surge
// detection is global per storage, not per tenant.
func WriteCounterKey(clusterID, storage string) string {
	return "mgs:" + clusterID + ":" + storage + ":wcount"
}

// DrainLeaseKey returns the cache key for the tenantless drain lease:
// "mgs:{cluster}:{storage}:drain-lock".
func DrainLeaseKey(clusterID, storage string) string {
	return "mgs:" + clusterID + ":" + storage + ":drain-lock"
}

type tenantCtxKey struct{}

// TenantKey is the single context key under which WithTenant stores the
// request-scoped tenant and from which TenantFromContext reads it. It is a
// private struct value, so a tenant stored under a plain string key such as
// "tenantId" is not seen.
var TenantKey = tenantCtxKey{}

// WithTenant returns a context carrying tenant as the request-scoped tenant
// value.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// TenantFromContext resolves the request-scoped tenant from ctx. Absent or
// blank values both map to "" (no tenant component), matching spec.md's
// "absent or blank -> no tenant component" rule.
func TenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(TenantKey).(string)
	return strings.TrimSpace(v)
}
