package authz

import (
	"sort"
	"strings"
	"time"
)

// RoleStatus represents the lifecycle state of a role
type RoleStatus string

const (
	RoleStatusActive     RoleStatus = "active"
	RoleStatusInactive   RoleStatus = "inactive"
	RoleStatusDeprecated RoleStatus = "deprecated"
)

// DataAccessScope describes how much of a module's data a role may see,
// independent of action-level permissions
type DataAccessScope string

const (
	DataAccessNone DataAccessScope = "none"
	DataAccessOwn  DataAccessScope = "own"
	DataAccessTeam DataAccessScope = "team"
	DataAccessAll  DataAccessScope = "all"
)

// dataAccessRank orders scopes from narrowest to widest.
func dataAccessRank(s DataAccessScope) int {
	switch s {
	case DataAccessOwn:
		return 1
	case DataAccessTeam:
		return 2
	case DataAccessAll:
		return 3
	default:
		return 0
	}
}

// Widest returns the wider of the two scopes.
func (s DataAccessScope) Widest(other DataAccessScope) DataAccessScope {
	if dataAccessRank(other) > dataAccessRank(s) {
		return other
	}
	return s
}

// Well-known role codes. SUPER_ADMIN short-circuits resolution entirely.
const (
	RoleCodeSuperAdmin = "SUPER_ADMIN"
	RoleCodeAdmin      = "ADMIN"
)

// WildcardAll is the global wildcard code matching every permission.
const WildcardAll = "admin:*"

// Role is a named grant container, optionally tenant-scoped and optionally
// inheriting from a single parent role
type Role struct {
	ID           int64      `json:"id"`
	TenantID     *int64     `json:"tenant_id,omitempty"` // nil for global roles
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	ParentRoleID *int64     `json:"parent_role_id,omitempty"`
	Priority     int        `json:"priority"`
	Status       RoleStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Permission is a single grantable capability identified by its code
// (canonical lowercase "module:action" or "module:resource:action")
type Permission struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Module   string `json:"module"`
	Action   string `json:"action"`
	IsActive bool   `json:"is_active"`
}

// UserRole assigns a role to a user inside an optional temporal window.
// The grant is effective iff IsActive and now is within [ValidFrom, ValidUntil]
// (a nil bound is unbounded on that side).
type UserRole struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	RoleID     int64      `json:"role_id"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	IsActive   bool       `json:"is_active"`
	GrantedAt  time.Time  `json:"granted_at"`
}

// Module is a registered functional area (customers, inventory, payments, ...)
type Module struct {
	ID   int64  `json:"id"`
	Code string `json:"code"` // compared case-insensitively everywhere
}

// RoleModuleAccess marks a module as owned by the module-scoped permission
// system for a role. The row's mere presence matters for precedence: legacy
// grants for the module are shadowed even when HasAccess is false.
type RoleModuleAccess struct {
	RoleID     int64           `json:"role_id"`
	ModuleID   int64           `json:"module_id"`
	HasAccess  bool            `json:"has_access"`
	DataAccess DataAccessScope `json:"data_access"`
}

// RoleModulePermission is a per-permission grant flag in the module-scoped
// system
type RoleModulePermission struct {
	RoleID       int64 `json:"role_id"`
	ModuleID     int64 `json:"module_id"`
	PermissionID int64 `json:"permission_id"`
	Granted      bool  `json:"granted"`
}

// ModuleField describes a single field of a module's records
type ModuleField struct {
	ID            int64  `json:"id"`
	ModuleID      int64  `json:"module_id"`
	Code          string `json:"code"`
	IsSystemField bool   `json:"is_system_field"`
}

// FieldPermission is the resolved visibility/editability of a field for a
// role. Invariant: Editable implies Visible.
type FieldPermission struct {
	Visible  bool `json:"visible"`
	Editable bool `json:"editable"`
}

// ResourcePermission is a per-object grant that bypasses role-based
// resolution for one (resourceType, resourceID) pair. It expires naturally
// via ValidUntil and never cascades from role changes.
type ResourcePermission struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	TenantID       *int64     `json:"tenant_id,omitempty"`
	ResourceType   string     `json:"resource_type"`
	ResourceID     string     `json:"resource_id"`
	PermissionCode string     `json:"permission_code"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	GrantedAt      time.Time  `json:"granted_at"`
}

// ResourceRef identifies a concrete object for resource-level checks
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PermissionKey is the parsed, structured form of a permission code.
// Parsing happens exactly once per code; all matching works on the key.
type PermissionKey struct {
	Module   string
	Resource string // empty for two-segment codes
	Action   string
}

// ParseKey parses a permission code into its structured key. Codes are
// normalized to lowercase. A malformed code (no ':') degrades gracefully:
// the whole string becomes the module and the action is empty, so wildcard
// derivation still works.
func ParseKey(code string) PermissionKey {
	code = strings.ToLower(strings.TrimSpace(code))
	parts := strings.SplitN(code, ":", 3)
	switch len(parts) {
	case 1:
		return PermissionKey{Module: parts[0]}
	case 2:
		return PermissionKey{Module: parts[0], Action: parts[1]}
	default:
		return PermissionKey{Module: parts[0], Resource: parts[1], Action: parts[2]}
	}
}

// String reassembles the canonical code for the key.
func (k PermissionKey) String() string {
	if k.Resource != "" {
		return k.Module + ":" + k.Resource + ":" + k.Action
	}
	if k.Action != "" {
		return k.Module + ":" + k.Action
	}
	return k.Module
}

// IsWildcard reports whether the key grants every action in its module.
func (k PermissionKey) IsWildcard() bool {
	return k.Action == "*" && k.Resource == ""
}

// ModuleWildcard returns the "<module>:*" code for the key's module.
func (k PermissionKey) ModuleWildcard() string {
	return k.Module + ":*"
}

// permissionSet is the resolved effective set, keyed by normalized code
type permissionSet map[string]struct{}

func newPermissionSet(codes ...string) permissionSet {
	set := make(permissionSet, len(codes))
	for _, c := range codes {
		set.add(c)
	}
	return set
}

func (s permissionSet) add(code string) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return
	}
	s[code] = struct{}{}
}

// matches reports whether the set satisfies the requested code: an exact
// entry, the code's module wildcard, or the global admin wildcard.
func (s permissionSet) matches(code string) bool {
	key := ParseKey(code)
	if _, ok := s[key.String()]; ok {
		return true
	}
	if _, ok := s[key.ModuleWildcard()]; ok {
		return true
	}
	_, ok := s[WildcardAll]
	return ok
}

// sorted returns the set's codes in lexical order for deterministic output.
func (s permissionSet) sorted() []string {
	codes := make([]string, 0, len(s))
	for c := range s {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
