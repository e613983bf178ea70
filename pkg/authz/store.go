package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store handles persistence for the authorization graph. All read queries are
// snapshot-free and idempotent; multi-row writes run in a single transaction
// so concurrent readers never observe a half-applied grant set.
type Store struct {
	db *sql.DB
}

// NewStore creates a new authorization store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for collaborators that share the
// connection pool (migrations, maintenance jobs).
func (s *Store) DB() *sql.DB {
	return s.db
}

const roleColumns = `r.id, r.tenant_id, r.code, r.name, r.parent_role_id, r.priority, r.status, r.created_at, r.updated_at`

// GetActiveUserRoles returns the user's directly assigned roles whose
// assignment is active, whose temporal window covers now, and whose role is
// active. When tenantID is given, tenant-scoped assignments must match it;
// global (NULL tenant) assignments always apply. Rows come back ordered by
// role priority, highest first.
func (s *Store) GetActiveUserRoles(ctx context.Context, userID int64, tenantID *int64) ([]Role, error) {
	query := `
		SELECT DISTINCT ` + roleColumns + `
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		  AND ur.is_active = $2
		  AND r.status = $3
		  AND (ur.valid_from IS NULL OR ur.valid_from <= $4)
		  AND (ur.valid_until IS NULL OR ur.valid_until >= $4)
	`
	args := []interface{}{userID, true, RoleStatusActive, time.Now().UTC()}
	if tenantID != nil {
		query += ` AND (ur.tenant_id = $5 OR ur.tenant_id IS NULL)`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY r.priority DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// GetActiveRole fetches a role by id for hierarchy expansion. Only the
// status filter applies to parent lookups; tenant and temporal filters do
// not. Returns (nil, nil) when the role does not exist or is not active.
func (s *Store) GetActiveRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.id = $1 AND r.status = $2`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, roleID, RoleStatusActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role %d: %w", roleID, err)
	}
	return role, nil
}

// GetLegacyGrants returns {code, module} pairs from the flat role→permission
// join for the given roles, active permissions only. Wildcard codes are
// returned literally; expansion happens at query time in the matcher.
func (s *Store) GetLegacyGrants(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders, args := int64In(roleIDs, 1)
	query := fmt.Sprintf(`
		SELECT DISTINCT p.code, p.module
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (%s)
		  AND p.is_active = $%d
	`, placeholders, len(roleIDs)+1)
	args = append(args, true)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get legacy grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Code, &g.Module); err != nil {
			return nil, fmt.Errorf("failed to scan legacy grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ModuleAccessEntry is one role×module row of the module-scoped system
type ModuleAccessEntry struct {
	ModuleCode string
	HasAccess  bool
	DataAccess DataAccessScope
}

// GetModuleAccess returns every role_module_access row for the given roles.
// Rows with has_access = false still come back: their presence alone marks
// the module as owned by the module-scoped system for precedence purposes.
func (s *Store) GetModuleAccess(ctx context.Context, roleIDs []int64) ([]ModuleAccessEntry, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders, args := int64In(roleIDs, 1)
	query := fmt.Sprintf(`
		SELECT m.code, rma.has_access, rma.data_access
		FROM role_module_access rma
		JOIN modules m ON m.id = rma.module_id
		WHERE rma.role_id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get module access: %w", err)
	}
	defer rows.Close()

	var entries []ModuleAccessEntry
	for rows.Next() {
		var e ModuleAccessEntry
		if err := rows.Scan(&e.ModuleCode, &e.HasAccess, &e.DataAccess); err != nil {
			return nil, fmt.Errorf("failed to scan module access: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetModuleScopedGrants returns granted permission codes from the
// module-scoped system: the role must have access to the module, the grant
// flag must be set, and the permission must be active.
func (s *Store) GetModuleScopedGrants(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders, args := int64In(roleIDs, 1)
	next := len(roleIDs) + 1
	query := fmt.Sprintf(`
		SELECT DISTINCT p.code, p.module
		FROM role_module_permissions rmp
		JOIN permissions p ON p.id = rmp.permission_id
		JOIN role_module_access rma
		  ON rma.role_id = rmp.role_id AND rma.module_id = rmp.module_id
		WHERE rmp.role_id IN (%s)
		  AND rmp.granted = $%d
		  AND rma.has_access = $%d
		  AND p.is_active = $%d
	`, placeholders, next, next+1, next+2)
	args = append(args, true, true, true)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get module-scoped grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Code, &g.Module); err != nil {
			return nil, fmt.Errorf("failed to scan module-scoped grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ListActivePermissionCodes returns the code of every active permission.
// This is the super-admin effective set.
func (s *Store) ListActivePermissionCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code FROM permissions WHERE is_active = $1 ORDER BY code`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// GetRoleDataAccess returns the data-access scope rows for a module across
// the given roles, access-granting rows only.
func (s *Store) GetRoleDataAccess(ctx context.Context, roleIDs []int64, moduleCode string) ([]DataAccessScope, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders, args := int64In(roleIDs, 1)
	next := len(roleIDs) + 1
	query := fmt.Sprintf(`
		SELECT rma.data_access
		FROM role_module_access rma
		JOIN modules m ON m.id = rma.module_id
		WHERE rma.role_id IN (%s)
		  AND rma.has_access = $%d
		  AND LOWER(m.code) = $%d
	`, placeholders, next, next+1)
	args = append(args, true, strings.ToLower(moduleCode))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get data access: %w", err)
	}
	defer rows.Close()

	var scopes []DataAccessScope
	for rows.Next() {
		var scope DataAccessScope
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan data access: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

// CreateRole creates a role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Status == "" {
		role.Status = RoleStatusActive
	}
	now := time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roles (tenant_id, code, name, parent_role_id, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, nullInt64(role.TenantID), role.Code, role.Name, nullInt64(role.ParentRoleID),
		role.Priority, role.Status, now, now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// CreatePermission creates a permission. The module and action segments are
// derived from the code when not set.
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	perm.Code = strings.ToLower(strings.TrimSpace(perm.Code))
	key := ParseKey(perm.Code)
	if perm.Module == "" {
		perm.Module = key.Module
	}
	if perm.Action == "" {
		perm.Action = key.Action
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO permissions (code, module, action, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, perm.Code, perm.Module, perm.Action, perm.IsActive).Scan(&perm.ID)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// DeactivatePermission removes a permission from all future resolutions
// without deleting history.
func (s *Store) DeactivatePermission(ctx context.Context, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE permissions SET is_active = $1 WHERE id = $2`, false, permissionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate permission: %w", err)
	}
	return nil
}

// CreateModule registers a module
func (s *Store) CreateModule(ctx context.Context, module *Module) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO modules (code) VALUES ($1) RETURNING id`, module.Code).Scan(&module.ID)
	if err != nil {
		return fmt.Errorf("failed to create module: %w", err)
	}
	return nil
}

// AssignRoleToUser creates a user role assignment
func (s *Store) AssignRoleToUser(ctx context.Context, ur *UserRole) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id, valid_from, valid_until, is_active, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, ur.UserID, ur.RoleID, nullInt64(ur.TenantID), nullTime(ur.ValidFrom),
		nullTime(ur.ValidUntil), ur.IsActive, now,
	).Scan(&ur.ID)
	if err != nil {
		return fmt.Errorf("failed to assign role to user: %w", err)
	}
	ur.GrantedAt = now
	return nil
}

// RevokeUserRole deactivates an assignment without deleting it
func (s *Store) RevokeUserRole(ctx context.Context, userRoleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_roles SET is_active = $1 WHERE id = $2`, false, userRoleID)
	if err != nil {
		return fmt.Errorf("failed to revoke user role: %w", err)
	}
	return nil
}

// AddRolePermission creates a flat legacy grant. No temporal or conditional
// qualifier exists in the legacy model; the row either exists or it doesn't.
func (s *Store) AddRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to add role permission: %w", err)
	}
	return nil
}

// RemoveRolePermission deletes a flat legacy grant
func (s *Store) RemoveRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to remove role permission: %w", err)
	}
	return nil
}

// SetRoleModuleAccess upserts the single role×module access row. Creating
// the row adopts the module into the module-scoped system for the role.
func (s *Store) SetRoleModuleAccess(ctx context.Context, access *RoleModuleAccess) error {
	if access.DataAccess == "" {
		access.DataAccess = DataAccessNone
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_module_access (role_id, module_id, has_access, data_access)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, module_id)
		DO UPDATE SET has_access = EXCLUDED.has_access, data_access = EXCLUDED.data_access
	`, access.RoleID, access.ModuleID, access.HasAccess, access.DataAccess)
	if err != nil {
		return fmt.Errorf("failed to set module access: %w", err)
	}
	return nil
}

// ReplaceRoleModulePermissions replaces a role's grant flags for one module
// in a single transaction so readers never observe a partial grant set.
func (s *Store) ReplaceRoleModulePermissions(ctx context.Context, roleID, moduleID int64, granted map[int64]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_module_permissions WHERE role_id = $1 AND module_id = $2`,
		roleID, moduleID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear module permissions: %w", err)
	}

	for permissionID, flag := range granted {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_module_permissions (role_id, module_id, permission_id, granted)
			VALUES ($1, $2, $3, $4)
		`, roleID, moduleID, permissionID, flag); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert module permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit module permissions: %w", err)
	}
	return nil
}

// scanRole scans one role row
func scanRole(scanner interface{ Scan(dest ...interface{}) error }) (*Role, error) {
	var role Role
	var tenantID, parentRoleID sql.NullInt64

	err := scanner.Scan(
		&role.ID,
		&tenantID,
		&role.Code,
		&role.Name,
		&parentRoleID,
		&role.Priority,
		&role.Status,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		id := tenantID.Int64
		role.TenantID = &id
	}
	if parentRoleID.Valid {
		id := parentRoleID.Int64
		role.ParentRoleID = &id
	}
	return &role, nil
}

// int64In builds a "$n, $n+1, ..." placeholder list starting at start
func int64In(ids []int64, start int) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
