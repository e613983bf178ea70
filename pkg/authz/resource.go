package authz

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HasResourcePermission reports whether a resource-level override grants the
// permission code on one specific object. The tenant filter applies only
// when a tenant is supplied; the temporal window treats nil bounds as
// unbounded. Pure read, no side effects.
func (s *Store) HasResourcePermission(ctx context.Context, userID int64, tenantID *int64, resourceType, resourceID, code string) (bool, error) {
	query := `
		SELECT COUNT(1)
		FROM resource_permissions
		WHERE user_id = $1
		  AND resource_type = $2
		  AND resource_id = $3
		  AND permission_code = $4
		  AND (valid_from IS NULL OR valid_from <= $5)
		  AND (valid_until IS NULL OR valid_until >= $5)
	`
	args := []interface{}{userID, resourceType, resourceID,
		strings.ToLower(strings.TrimSpace(code)), time.Now().UTC()}
	if tenantID != nil {
		query += ` AND tenant_id = $6`
		args = append(args, *tenantID)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check resource permission: %w", err)
	}
	return count > 0, nil
}

// GrantResourcePermission creates a per-object grant. Overrides are created
// only by explicit grant actions; they expire via ValidUntil and never
// cascade from role changes.
func (s *Store) GrantResourcePermission(ctx context.Context, rp *ResourcePermission) error {
	rp.PermissionCode = strings.ToLower(strings.TrimSpace(rp.PermissionCode))
	now := time.Now().UTC()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO resource_permissions (user_id, tenant_id, resource_type, resource_id, permission_code, valid_from, valid_until, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, rp.UserID, nullInt64(rp.TenantID), rp.ResourceType, rp.ResourceID,
		rp.PermissionCode, nullTime(rp.ValidFrom), nullTime(rp.ValidUntil), now,
	).Scan(&rp.ID)
	if err != nil {
		return fmt.Errorf("failed to grant resource permission: %w", err)
	}
	rp.GrantedAt = now
	return nil
}

// RevokeResourcePermission deletes a per-object grant
func (s *Store) RevokeResourcePermission(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resource_permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke resource permission: %w", err)
	}
	return nil
}

// CleanupExpiredResourcePermissions removes grants whose window has closed.
// Maintenance operation for callers to run on their own schedule; expired
// rows are already invisible to checks.
func (s *Store) CleanupExpiredResourcePermissions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM resource_permissions WHERE valid_until IS NOT NULL AND valid_until < $1`,
		time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up resource permissions: %w", err)
	}
	return result.RowsAffected()
}
