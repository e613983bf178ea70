package authz

import (
	"context"
	"strings"
)

// Grant is a single permission grant produced by a source. Module is carried
// separately from the code so the precedence policy never has to re-parse.
type Grant struct {
	Code   string
	Module string
}

// PermissionSource produces role-based permission grants. The engine merges
// two concrete sources: the flat legacy role→permission join and the newer
// module-scoped access+grant model.
type PermissionSource interface {
	Grants(ctx context.Context, roleIDs []int64) ([]Grant, error)
}

// legacySource reads the flat role_permissions join. Wildcard codes pass
// through literally; they are resolved by the matcher at query time.
type legacySource struct {
	store *Store
}

func (s *legacySource) Grants(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	return s.store.GetLegacyGrants(ctx, roleIDs)
}

// moduleScopedSource reads the module-scoped system: per-role module access
// flags plus per-permission grant flags.
type moduleScopedSource struct {
	store *Store
}

func (s *moduleScopedSource) Grants(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	return s.store.GetModuleScopedGrants(ctx, roleIDs)
}

// OwnedModules returns the set of module codes (lowercased) that have any
// role_module_access row for the given roles. A module is owned by the
// module-scoped system regardless of the has_access value: creating even a
// single access row adopts the module into the new model.
func (s *moduleScopedSource) OwnedModules(ctx context.Context, roleIDs []int64) (map[string]struct{}, error) {
	entries, err := s.store.GetModuleAccess(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		owned[strings.ToLower(e.ModuleCode)] = struct{}{}
	}
	return owned, nil
}

// Precedence merges grants from the two permission systems. The shadowing
// rule is strict: once a module is owned by the module-scoped system, legacy
// grants for that module are discarded entirely, even when the new system
// currently grants nothing for it. This lets an administrator adopt a module
// into the new model by creating one access row, without also deleting every
// legacy grant for it.
type Precedence struct{}

// Merge applies the shadowing rule and returns the deduplicated union of
// module-scoped grants and surviving legacy grants.
func (Precedence) Merge(legacy, scoped []Grant, owned map[string]struct{}) permissionSet {
	set := newPermissionSet()
	for _, g := range scoped {
		set.add(g.Code)
	}
	for _, g := range legacy {
		if _, shadowed := owned[strings.ToLower(g.Module)]; shadowed {
			continue
		}
		set.add(g.Code)
	}
	return set
}
