// Package authz is the authorization resolution engine for the Atrium admin
// platform: given a user (and optional tenant) it computes the effective set
// of granted permissions and answers point queries, including checks scoped
// to one specific object.
//
// # Overview
//
// Atrium carries two overlapping permission systems that grew up at
// different times:
//
//   - the legacy model: a flat role→permission join (role_permissions) with
//     no qualifiers beyond row existence
//   - the module-scoped model: a per-role, per-module access flag plus
//     per-permission grant flags (role_module_access +
//     role_module_permissions) and a coarse data-access scope
//
// The engine reconciles them deterministically. For every module that has
// any role_module_access row for the user's resolved roles (regardless of
// the has_access value), the module-scoped system owns that module and
// legacy grants for it are discarded. Modules never adopted by the new
// system keep their legacy grants. The final set is the deduplicated union.
//
// # Resolution pipeline
//
// A query runs through, in order:
//
//  1. Seed roles: the user's direct, active, temporally valid assignments,
//     optionally tenant-filtered (global assignments always apply).
//  2. Super-admin gate: a direct SUPER_ADMIN role short-circuits to the set
//     of every active permission code.
//  3. Hierarchy expansion: each seed's single-parent chain is walked up to
//     five hops; parent lookups filter on role status only. Cycles are
//     detected and truncate the walk with a warning, never an error.
//  4. Both permission sources, merged under the shadowing rule above.
//
// Resource-level overrides (resource_permissions) sit outside the pipeline:
// when a check names a concrete object, a matching override grants access
// immediately, independent of role state. Only the single-code check
// consults overrides; UserHasAnyPermission and UserHasAllPermissions do not.
//
// # Wildcards
//
// Permission codes are lowercase "module:action" or
// "module:resource:action". A code "module:*" in the resolved set matches
// every code of that module; "admin:*" matches everything. Codes are parsed
// once into a structured key; a malformed code without ':' degrades to
// whole-string-as-module, so wildcard derivation never errors.
//
// # Usage
//
//	store := authz.NewStore(db)
//	resolver := authz.NewResolver(store)
//
//	codes, err := resolver.GetUserPermissions(ctx, userID, &tenantID)
//
//	ok, err := resolver.UserHasPermission(ctx, userID, "orders:update", &tenantID,
//		&authz.ResourceRef{Type: "order", ID: "ord_123"})
//
// The engine is stateless and read-mostly: every query recomputes from
// current storage, and correctness needs only read-committed consistency.
// Callers own caching; see the cache subpackage for decorators.
package authz
