package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourcePermissionTenantFilter(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.GrantResourcePermission(ctx, &ResourcePermission{
		UserID:         1,
		TenantID:       int64Ptr(10),
		ResourceType:   "order",
		ResourceID:     "ord_123",
		PermissionCode: "orders:update",
	}))

	ok, err := store.HasResourcePermission(ctx, 1, int64Ptr(10), "order", "ord_123", "orders:update")
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong tenant does not match a tenant-scoped grant.
	ok, err = store.HasResourcePermission(ctx, 1, int64Ptr(20), "order", "ord_123", "orders:update")
	require.NoError(t, err)
	assert.False(t, ok)

	// Without a tenant filter the grant is visible.
	ok, err = store.HasResourcePermission(ctx, 1, nil, "order", "ord_123", "orders:update")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResourcePermissionCodeNormalized(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.GrantResourcePermission(ctx, &ResourcePermission{
		UserID:         1,
		ResourceType:   "order",
		ResourceID:     "ord_123",
		PermissionCode: "Orders:UPDATE",
	}))

	ok, err := store.HasResourcePermission(ctx, 1, nil, "order", "ord_123", "orders:update")
	require.NoError(t, err)
	assert.True(t, ok)

	// The lookup lowercases too, so casing never matters on either side.
	ok, err = store.HasResourcePermission(ctx, 1, nil, "order", "ord_123", "ORDERS:update")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRevokeResourcePermission(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	rp := &ResourcePermission{
		UserID:         1,
		ResourceType:   "order",
		ResourceID:     "ord_123",
		PermissionCode: "orders:update",
	}
	require.NoError(t, store.GrantResourcePermission(ctx, rp))
	require.NotZero(t, rp.ID)

	require.NoError(t, store.RevokeResourcePermission(ctx, rp.ID))

	ok, err := store.HasResourcePermission(ctx, 1, nil, "order", "ord_123", "orders:update")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupLeavesOpenEndedGrants(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.GrantResourcePermission(ctx, &ResourcePermission{
		UserID: 1, ResourceType: "order", ResourceID: "a", PermissionCode: "orders:view",
	}))
	require.NoError(t, store.GrantResourcePermission(ctx, &ResourcePermission{
		UserID: 1, ResourceType: "order", ResourceID: "b", PermissionCode: "orders:view",
		ValidUntil: timePtr(now.Add(-time.Hour)),
	}))
	require.NoError(t, store.GrantResourcePermission(ctx, &ResourcePermission{
		UserID: 1, ResourceType: "order", ResourceID: "c", PermissionCode: "orders:view",
		ValidUntil: timePtr(now.Add(time.Hour)),
	}))

	removed, err := store.CleanupExpiredResourcePermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The open-ended and still-valid grants survive.
	ok, err := store.HasResourcePermission(ctx, 1, nil, "order", "a", "orders:view")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.HasResourcePermission(ctx, 1, nil, "order", "c", "orders:view")
	require.NoError(t, err)
	assert.True(t, ok)
}
