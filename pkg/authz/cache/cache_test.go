package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumhq/atrium/pkg/authz"
)

// fakeSource counts resolutions so tests can observe cache hits
type fakeSource struct {
	codes         []string
	err           error
	resolveCalls  int
	resourceCalls int
}

func (f *fakeSource) GetUserPermissions(ctx context.Context, userID int64, tenantID *int64) ([]string, error) {
	f.resolveCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.codes, nil
}

func (f *fakeSource) UserHasPermission(ctx context.Context, userID int64, code string, tenantID *int64, resource *authz.ResourceRef) (bool, error) {
	if resource != nil {
		f.resourceCalls++
		return true, nil
	}
	return codesMatch(f.codes, code), nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestMemoryCachesEffectiveSet(t *testing.T) {
	source := &fakeSource{codes: []string{"orders:view"}}
	mem := NewMemory(source, 100, time.Minute)
	ctx := context.Background()

	codes, err := mem.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:view"}, codes)

	_, err = mem.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, source.resolveCalls, "second read must come from cache")

	// A different tenant is a different entry.
	_, err = mem.GetUserPermissions(ctx, 1, int64Ptr(10))
	require.NoError(t, err)
	assert.Equal(t, 2, source.resolveCalls)
}

func TestMemoryInvalidate(t *testing.T) {
	source := &fakeSource{codes: []string{"orders:view"}}
	mem := NewMemory(source, 100, time.Minute)
	ctx := context.Background()

	_, err := mem.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)

	mem.Invalidate(1, nil)

	_, err = mem.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, source.resolveCalls, "invalidation must force a fresh resolution")
}

func TestMemoryPointChecksUseCachedSet(t *testing.T) {
	source := &fakeSource{codes: []string{"orders:*", "reports:view"}}
	mem := NewMemory(source, 100, time.Minute)
	ctx := context.Background()

	ok, err := mem.UserHasPermission(ctx, 1, "orders:update", nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mem.UserHasPermission(ctx, 1, "billing:view", nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, source.resolveCalls, "point checks share one cached set")
}

func TestMemoryResourceChecksBypassCache(t *testing.T) {
	source := &fakeSource{codes: []string{"orders:view"}}
	mem := NewMemory(source, 100, time.Minute)
	ctx := context.Background()

	ref := &authz.ResourceRef{Type: "order", ID: "ord_123"}
	ok, err := mem.UserHasPermission(ctx, 1, "orders:update", nil, ref)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, source.resourceCalls)
	assert.Zero(t, source.resolveCalls, "resource checks never populate the cache")
}

func TestMemoryDoesNotCacheErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("db down")}
	mem := NewMemory(source, 100, time.Minute)
	ctx := context.Background()

	_, err := mem.GetUserPermissions(ctx, 1, nil)
	require.Error(t, err)

	source.err = nil
	source.codes = []string{"orders:view"}

	codes, err := mem.GetUserPermissions(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:view"}, codes)
}

func TestCodesMatchWildcards(t *testing.T) {
	codes := []string{"orders:*", "reports:view"}

	assert.True(t, codesMatch(codes, "orders:anything"))
	assert.True(t, codesMatch(codes, "reports:view"))
	assert.True(t, codesMatch(codes, "REPORTS:VIEW"))
	assert.False(t, codesMatch(codes, "billing:view"))

	assert.True(t, codesMatch([]string{authz.WildcardAll}, "billing:view"))
}
