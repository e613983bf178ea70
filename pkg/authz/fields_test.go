package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPermissionDefaultsHidden(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	role := seedRole(t, store, "SUPPORT")
	module := seedModule(t, store, "customers")

	// No row at all: hidden and locked.
	fp, err := store.GetFieldPermission(ctx, role.ID, module.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, FieldPermission{Visible: false, Editable: false}, fp)
}

func TestSetFieldPermissionNormalizesInvariant(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	role := seedRole(t, store, "SUPPORT")
	module := seedModule(t, store, "customers")

	tests := []struct {
		name     string
		fieldID  int64
		visible  bool
		editable bool
		want     FieldPermission
	}{
		{"editable forces visible", 1, false, true, FieldPermission{Visible: true, Editable: true}},
		{"hidden forces not editable", 2, false, false, FieldPermission{Visible: false, Editable: false}},
		{"visible only", 3, true, false, FieldPermission{Visible: true, Editable: false}},
		{"both", 4, true, true, FieldPermission{Visible: true, Editable: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.SetFieldPermission(ctx, role.ID, module.ID, tt.fieldID, tt.visible, tt.editable))
			fp, err := store.GetFieldPermission(ctx, role.ID, module.ID, tt.fieldID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fp)
		})
	}
}

func TestSetFieldPermissionUpserts(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	role := seedRole(t, store, "SUPPORT")
	module := seedModule(t, store, "customers")

	require.NoError(t, store.SetFieldPermission(ctx, role.ID, module.ID, 1, true, true))
	// Clearing visible on the same row must also clear editable.
	require.NoError(t, store.SetFieldPermission(ctx, role.ID, module.ID, 1, false, false))

	fp, err := store.GetFieldPermission(ctx, role.ID, module.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, FieldPermission{}, fp)
}

func TestRegisterModuleFieldFansOut(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	super := seedRole(t, store, RoleCodeSuperAdmin)
	admin := seedRole(t, store, RoleCodeAdmin)
	support := seedRole(t, store, "SUPPORT")
	module := seedModule(t, store, "customers")

	field := &ModuleField{ModuleID: module.ID, Code: "credit_limit"}
	require.NoError(t, store.RegisterModuleField(ctx, field))
	require.NotZero(t, field.ID)

	// Every role sees the new field; only admin roles may edit it.
	tests := []struct {
		roleID       int64
		wantEditable bool
	}{
		{super.ID, true},
		{admin.ID, true},
		{support.ID, false},
	}
	for _, tt := range tests {
		fp, err := store.GetFieldPermission(ctx, tt.roleID, module.ID, field.ID)
		require.NoError(t, err)
		assert.True(t, fp.Visible)
		assert.Equal(t, tt.wantEditable, fp.Editable)
	}
}

func TestRegisterModuleFieldRollsBackOnDuplicate(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	seedRole(t, store, "SUPPORT")
	module := seedModule(t, store, "customers")

	first := &ModuleField{ModuleID: module.ID, Code: "credit_limit"}
	require.NoError(t, store.RegisterModuleField(ctx, first))

	dup := &ModuleField{ModuleID: module.ID, Code: "credit_limit"}
	err := store.RegisterModuleField(ctx, dup)
	require.Error(t, err)

	// The failed registration left no partial rows behind.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM module_fields WHERE module_id = $1`, module.ID).Scan(&count))
	assert.Equal(t, 1, count)
}
