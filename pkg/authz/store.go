package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles entitlement data persistence. It is the single shared
// mutable resource: all resolution reads and administration writes go
// through it, relying on the database's transaction semantics for
// read-after-write consistency.
type Store struct {
	db *sql.DB
}

// NewStore creates a new entitlement store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transactional callers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateUser creates a new user. The ID is generated if empty.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, email, is_super_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.IsSuperAdmin, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `
		SELECT id, email, is_super_admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.IsSuperAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// DeleteUser deletes a user and cascades its memberships.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM membership_roles
		WHERE membership_id IN (SELECT id FROM memberships WHERE user_id = $1)
	`, userID); err != nil {
		return fmt.Errorf("failed to delete membership roles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

// CreateOrganization creates a new organization.
func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = uuid.NewString()
	}

	query := `
		INSERT INTO organizations (id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, org.ID, org.Name, org.Slug, now, now)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	return s.getOrganization(ctx, `id = $1`, orgID)
}

// GetOrganizationBySlug retrieves an organization by slug.
func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.getOrganization(ctx, `slug = $1`, slug)
}

func (s *Store) getOrganization(ctx context.Context, where string, arg any) (*Organization, error) {
	query := `
		SELECT id, name, slug, created_at, updated_at
		FROM organizations
		WHERE ` + where

	var org Organization
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// CreateMembership joins a user into an organization. Uniqueness of
// (user, organization) is enforced by the schema.
func (s *Store) CreateMembership(ctx context.Context, m *Membership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	query := `
		INSERT INTO memberships (id, user_id, organization_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query, m.ID, m.UserID, m.OrganizationID, m.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// CreateMembershipWithRoles creates a membership and attaches the
// given roles in a single transaction, so a failed attach leaves no
// membership row behind. Callers validate that the roles belong to
// the membership's organization before calling.
func (s *Store) CreateMembershipWithRoles(ctx context.Context, m *Membership, roleIDs []string) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (id, user_id, organization_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.UserID, m.OrganizationID, m.IsActive, now, now); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO membership_roles (membership_id, role_id)
			VALUES ($1, $2)
			ON CONFLICT (membership_id, role_id) DO NOTHING
		`, m.ID, roleID); err != nil {
			return fmt.Errorf("failed to attach role %s: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit membership creation: %w", err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetMembership retrieves the membership for a (user, organization)
// pair regardless of its active flag.
func (s *Store) GetMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	query := `
		SELECT id, user_id, organization_id, is_active, created_at, updated_at
		FROM memberships
		WHERE user_id = $1 AND organization_id = $2
	`

	var m Membership
	err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(
		&m.ID,
		&m.UserID,
		&m.OrganizationID,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return &m, nil
}

// SetMembershipActive flips the active flag. Role assignments are
// retained either way; only the grant computation changes.
func (s *Store) SetMembershipActive(ctx context.Context, membershipID string, active bool) error {
	query := `
		UPDATE memberships
		SET is_active = $1, updated_at = $2
		WHERE id = $3
	`

	res, err := s.db.ExecContext(ctx, query, active, time.Now().UTC(), membershipID)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMemberships lists all memberships of an organization.
func (s *Store) ListMemberships(ctx context.Context, orgID string) ([]Membership, error) {
	query := `
		SELECT id, user_id, organization_id, is_active, created_at, updated_at
		FROM memberships
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

// UpsertPermission adds a permission key to the global vocabulary,
// updating the display name when the key already exists.
func (s *Store) UpsertPermission(ctx context.Context, perm Permission) error {
	query := `
		INSERT INTO permissions (key, name)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name
	`

	if _, err := s.db.ExecContext(ctx, query, perm.Key, perm.Name); err != nil {
		return fmt.Errorf("failed to upsert permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by key.
func (s *Store) GetPermission(ctx context.Context, key string) (*Permission, error) {
	query := `SELECT key, name FROM permissions WHERE key = $1`

	var perm Permission
	err := s.db.QueryRowContext(ctx, query, key).Scan(&perm.Key, &perm.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}

	return &perm, nil
}

// ListPermissions lists the global permission vocabulary.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, name FROM permissions ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Key, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}

	return perms, rows.Err()
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID string) (*Role, error) {
	query := `
		SELECT id, organization_id, key, name, is_default, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID,
		&role.OrganizationID,
		&role.Key,
		&role.Name,
		&role.IsDefault,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// GetRoleByKey retrieves a role by (organization, key). Roles are
// never resolved by key alone: an identical key in another
// organization is a different role.
func (s *Store) GetRoleByKey(ctx context.Context, orgID, key string) (*Role, error) {
	query := `
		SELECT id, organization_id, key, name, is_default, created_at, updated_at
		FROM roles
		WHERE organization_id = $1 AND key = $2
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, orgID, key).Scan(
		&role.ID,
		&role.OrganizationID,
		&role.Key,
		&role.Name,
		&role.IsDefault,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// ListRoles lists all roles of an organization.
func (s *Store) ListRoles(ctx context.Context, orgID string) ([]Role, error) {
	query := `
		SELECT id, organization_id, key, name, is_default, created_at, updated_at
		FROM roles
		WHERE organization_id = $1
		ORDER BY is_default DESC, key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Key, &role.Name, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// ListRolePermissionKeys lists the permission keys attached to a role.
func (s *Store) ListRolePermissionKeys(ctx context.Context, roleID string) ([]string, error) {
	query := `
		SELECT permission_key
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY permission_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan permission key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ListMembershipRoles lists the roles attached to a membership,
// re-scoped through the given organization. The join deliberately
// filters on roles.organization_id: a role ID is never trusted without
// confirming it belongs to the organization in the request context.
func (s *Store) ListMembershipRoles(ctx context.Context, membershipID, orgID string) ([]Role, error) {
	query := `
		SELECT r.id, r.organization_id, r.key, r.name, r.is_default, r.created_at, r.updated_at
		FROM roles r
		JOIN membership_roles mr ON mr.role_id = r.id
		WHERE mr.membership_id = $1 AND r.organization_id = $2
		ORDER BY r.key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, membershipID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Key, &role.Name, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// MembershipHasPermission reports whether any role attached to the
// membership carries the permission key, with role lookups scoped to
// the organization.
func (s *Store) MembershipHasPermission(ctx context.Context, membershipID, orgID, permissionKey string) (bool, error) {
	query := `
		SELECT COUNT(1)
		FROM role_permissions rp
		JOIN membership_roles mr ON mr.role_id = rp.role_id
		JOIN roles r ON r.id = rp.role_id
		WHERE mr.membership_id = $1
		  AND r.organization_id = $2
		  AND rp.permission_key = $3
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, membershipID, orgID, permissionKey).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check membership permission: %w", err)
	}
	return count > 0, nil
}
