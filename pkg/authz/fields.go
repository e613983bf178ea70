package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// GetFieldPermission resolves a field's visibility/editability for a role.
// Missing rows default to {false, false}: a field nobody granted is hidden.
// The reader does not validate or repair inconsistent rows; the invariant
// (editable implies visible) is enforced on every write path instead.
func (s *Store) GetFieldPermission(ctx context.Context, roleID, moduleID, fieldID int64) (FieldPermission, error) {
	var fp FieldPermission
	err := s.db.QueryRowContext(ctx, `
		SELECT is_visible, is_editable
		FROM role_field_permissions
		WHERE role_id = $1 AND module_id = $2 AND field_id = $3
	`, roleID, moduleID, fieldID).Scan(&fp.Visible, &fp.Editable)
	if err == sql.ErrNoRows {
		return FieldPermission{}, nil
	}
	if err != nil {
		return FieldPermission{}, fmt.Errorf("failed to get field permission: %w", err)
	}
	return fp, nil
}

// SetFieldPermission upserts a field permission row, normalizing the
// invariant: granting editable forces visible on, and clearing visible
// forces editable off.
func (s *Store) SetFieldPermission(ctx context.Context, roleID, moduleID, fieldID int64, visible, editable bool) error {
	if editable {
		visible = true
	}
	if !visible {
		editable = false
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_field_permissions (role_id, module_id, field_id, is_visible, is_editable)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role_id, module_id, field_id)
		DO UPDATE SET is_visible = EXCLUDED.is_visible, is_editable = EXCLUDED.is_editable
	`, roleID, moduleID, fieldID, visible, editable)
	if err != nil {
		return fmt.Errorf("failed to set field permission: %w", err)
	}
	return nil
}

// RegisterModuleField creates a field and fans out a default permission row
// to every existing role in one transaction: visible for everyone, editable
// only for SUPER_ADMIN and ADMIN roles. All-or-nothing, so readers never see
// a field with permissions for only some roles.
func (s *Store) RegisterModuleField(ctx context.Context, field *ModuleField) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO module_fields (module_id, code, is_system_field)
		VALUES ($1, $2, $3)
		RETURNING id
	`, field.ModuleID, field.Code, field.IsSystemField).Scan(&field.ID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create module field: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, code FROM roles`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to list roles for fan-out: %w", err)
	}

	type roleRow struct {
		id   int64
		code string
	}
	var roles []roleRow
	for rows.Next() {
		var rr roleRow
		if err := rows.Scan(&rr.id, &rr.code); err != nil {
			rows.Close()
			tx.Rollback()
			return fmt.Errorf("failed to scan role for fan-out: %w", err)
		}
		roles = append(roles, rr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		tx.Rollback()
		return fmt.Errorf("failed to read roles for fan-out: %w", err)
	}
	rows.Close()

	for _, rr := range roles {
		editable := rr.code == RoleCodeSuperAdmin || rr.code == RoleCodeAdmin
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_field_permissions (role_id, module_id, field_id, is_visible, is_editable)
			VALUES ($1, $2, $3, $4, $5)
		`, rr.id, field.ModuleID, field.ID, true, editable); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to fan out field permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit field registration: %w", err)
	}
	return nil
}
