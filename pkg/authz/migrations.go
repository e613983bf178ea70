package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the authorization schema migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT,
					code VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL DEFAULT '',
					parent_role_id BIGINT REFERENCES roles(id) ON DELETE SET NULL,
					priority INT NOT NULL DEFAULT 0,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, code)
				);

				CREATE INDEX idx_roles_tenant_id ON roles(tenant_id);
				CREATE INDEX idx_roles_parent_role_id ON roles(parent_role_id);
				CREATE INDEX idx_roles_code ON roles(code);
			`,
		},
		{
			Version:     2,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(255) NOT NULL UNIQUE,
					module VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE INDEX idx_permissions_module ON permissions(module);
				CREATE INDEX idx_permissions_is_active ON permissions(is_active);
			`,
		},
		{
			Version:     3,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					tenant_id BIGINT,
					valid_from TIMESTAMP,
					valid_until TIMESTAMP,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
				CREATE INDEX idx_user_roles_tenant_id ON user_roles(tenant_id);
				CREATE INDEX idx_user_roles_valid_until ON user_roles(valid_until);
			`,
		},
		{
			Version:     4,
			Description: "Create role_permissions table (legacy grants)",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create modules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS modules (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(100) NOT NULL UNIQUE
				);
			`,
		},
		{
			Version:     6,
			Description: "Create role_module_access and role_module_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_module_access (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					module_id BIGINT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
					has_access BOOLEAN NOT NULL DEFAULT FALSE,
					data_access VARCHAR(20) NOT NULL DEFAULT 'none',
					PRIMARY KEY (role_id, module_id)
				);

				CREATE TABLE IF NOT EXISTS role_module_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					module_id BIGINT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					granted BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (role_id, module_id, permission_id)
				);
			`,
		},
		{
			Version:     7,
			Description: "Create module_fields and role_field_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS module_fields (
					id BIGSERIAL PRIMARY KEY,
					module_id BIGINT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
					code VARCHAR(100) NOT NULL,
					is_system_field BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(module_id, code)
				);

				CREATE TABLE IF NOT EXISTS role_field_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					module_id BIGINT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
					field_id BIGINT NOT NULL REFERENCES module_fields(id) ON DELETE CASCADE,
					is_visible BOOLEAN NOT NULL DEFAULT FALSE,
					is_editable BOOLEAN NOT NULL DEFAULT FALSE,
					PRIMARY KEY (role_id, module_id, field_id)
				);
			`,
		},
		{
			Version:     8,
			Description: "Create resource_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					tenant_id BIGINT,
					resource_type VARCHAR(100) NOT NULL,
					resource_id VARCHAR(255) NOT NULL,
					permission_code VARCHAR(255) NOT NULL,
					valid_from TIMESTAMP,
					valid_until TIMESTAMP,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_resource_permissions_lookup
					ON resource_permissions(user_id, resource_type, resource_id, permission_code);
				CREATE INDEX idx_resource_permissions_valid_until
					ON resource_permissions(valid_until);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own
// transaction
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
