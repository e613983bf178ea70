package authz

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountChecks(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	resolver := NewResolver(store, WithMetrics(m))
	ctx := context.Background()

	role := seedRole(t, store, "SUPPORT")
	seedLegacyGrant(t, store, role.ID, "orders:view")
	seedAssignment(t, store, 1, role.ID)

	_, err := resolver.UserHasPermission(ctx, 1, "orders:view", nil, nil)
	require.NoError(t, err)
	_, err = resolver.UserHasPermission(ctx, 1, "billing:refund", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChecksTotal.WithLabelValues("allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChecksTotal.WithLabelValues("denied")))
}

func TestMetricsCountHierarchyCycles(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	m := NewMetrics(prometheus.NewRegistry())
	resolver := NewResolver(store, WithMetrics(m))
	ctx := context.Background()

	role := seedRole(t, store, "LOOP")
	_, err := db.Exec(`UPDATE roles SET parent_role_id = $1 WHERE id = $2`, role.ID, role.ID)
	require.NoError(t, err)
	seedAssignment(t, store, 1, role.ID)

	_, err = resolver.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HierarchyCycles))
}
