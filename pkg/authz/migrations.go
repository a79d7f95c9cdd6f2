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

// GetMigrations returns all entitlement store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					slug TEXT NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     3,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, organization_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_organization_id ON memberships(organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					key TEXT PRIMARY KEY,
					name TEXT NOT NULL
				);
			`,
		},
		{
			Version:     5,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					key TEXT NOT NULL,
					name TEXT NOT NULL,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(organization_id, key)
				);

				CREATE INDEX IF NOT EXISTS idx_roles_organization_id ON roles(organization_id);
			`,
		},
		{
			Version:     6,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_key TEXT NOT NULL REFERENCES permissions(key) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_key)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_key ON role_permissions(permission_key);
			`,
		},
		{
			Version:     7,
			Description: "Create membership_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS membership_roles (
					membership_id TEXT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					PRIMARY KEY (membership_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_membership_roles_role_id ON membership_roles(role_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
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

	// Run pending migrations
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

// BuiltInPermissions returns the global permission vocabulary seeded
// at startup. Permission keys are shared across all organizations;
// which roles grant them is per-organization data.
func BuiltInPermissions() []Permission {
	return []Permission{
		{Key: "hr.employees.view", Name: "View employees"},
		{Key: "hr.employees.manage", Name: "Manage employees"},
		{Key: "hr.payroll.approve", Name: "Approve payroll"},
		{Key: "tickets.view", Name: "View tickets"},
		{Key: "tickets.manage", Name: "Manage tickets"},
		{Key: "marketplace.listings.view", Name: "View marketplace listings"},
		{Key: "marketplace.listings.manage", Name: "Manage marketplace listings"},
		{Key: "org.members.view", Name: "View organization members"},
		{Key: "org.members.manage", Name: "Manage organization members"},
		{Key: "org.roles.manage", Name: "Manage organization roles"},
		{Key: "org.settings.manage", Name: "Manage organization settings"},
	}
}

// SeedPermissions upserts the built-in permission vocabulary.
// Idempotent; safe to run on every startup.
func SeedPermissions(ctx context.Context, store *Store) error {
	for _, perm := range BuiltInPermissions() {
		if err := store.UpsertPermission(ctx, perm); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", perm.Key, err)
		}
	}
	return nil
}
