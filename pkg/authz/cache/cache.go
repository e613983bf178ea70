package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/atriumhq/atrium/pkg/authz"
)

// Source is the read surface the decorators wrap. *authz.Resolver satisfies
// it; so does another decorator, so layers stack.
type Source interface {
	GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error)
	UserHasPermission(ctx context.Context, userID int64, code string, tenantID *int64, resource *authz.ResourceRef) (bool, error)
}

// userKey builds the cache key for a user's effective set
func userKey(userID int64, tenantID *int64) string {
	if tenantID == nil {
		return fmt.Sprintf("authz:perms:%d", userID)
	}
	return fmt.Sprintf("authz:perms:%d:t%d", userID, *tenantID)
}

// codesMatch answers a point query against a cached effective set using the
// same wildcard semantics as the resolver: exact code, module wildcard, or
// the global admin wildcard. Cached codes are already normalized.
func codesMatch(codes []string, code string) bool {
	key := authz.ParseKey(code)
	exact := key.String()
	wild := key.ModuleWildcard()
	for _, c := range codes {
		if c == exact || c == wild || c == authz.WildcardAll {
			return true
		}
	}
	return false
}

// Memory caches effective permission sets in an in-process LRU with TTL
// expiry. Concurrent misses for the same user collapse into one resolution.
// Point checks against a concrete resource always pass through: per-object
// overrides must stay fresh.
type Memory struct {
	source Source
	cache  *lru.LRU[string, []string]
	group  singleflight.Group
}

// NewMemory creates a memory decorator over source. Entries expire after ttl
// regardless of use; size bounds the entry count.
func NewMemory(source Source, size int, ttl time.Duration) *Memory {
	if size < 10 {
		size = 10
	}
	return &Memory{
		source: source,
		cache:  lru.NewLRU[string, []string](size, nil, ttl),
	}
}

// GetUserPermissions returns the cached effective set, resolving on miss
func (m *Memory) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	key := userKey(userID, tenantID)
	if codes, ok := m.cache.Get(key); ok {
		return codes, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		codes, err := m.source.GetUserPermissions(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		m.cache.Add(key, codes)
		return codes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// UserHasPermission answers a point query from the cached set. Resource
// checks bypass the cache entirely and hit the underlying resolver.
func (m *Memory) UserHasPermission(ctx context.Context, userID int64, code string, tenantID *int64, resource *authz.ResourceRef) (bool, error) {
	if resource != nil {
		return m.source.UserHasPermission(ctx, userID, code, tenantID, resource)
	}
	codes, err := m.GetUserPermissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	return codesMatch(codes, code), nil
}

// Invalidate drops the cached set for one user/tenant pair. Call it after
// role or grant changes for that user.
func (m *Memory) Invalidate(userID int64, tenantID *int64) {
	m.cache.Remove(userKey(userID, tenantID))
}

// Purge drops every cached entry. Bulk grant changes are rare enough that
// clearing everything beats tracking reverse dependencies.
func (m *Memory) Purge() {
	m.cache.Purge()
}
