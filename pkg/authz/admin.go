package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/pkg/audit"
	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Admin provides the mutation operations that change the entitlement
// graph the resolver reads. Every mutation is either fully applied or
// not applied; invalid graph states (cross-tenant bindings, unknown
// permission keys) are rejected at this boundary, not merely left to
// foreign-key constraints. Each successful mutation invalidates the
// affected organization's cached decisions before returning.
type Admin struct {
	db          *sql.DB
	store       *Store
	invalidator Invalidator
	audit       audit.Logger
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// AdminOption configures an Admin.
type AdminOption func(*Admin)

// WithInvalidator purges cached decisions on every mutation.
func WithInvalidator(inv Invalidator) AdminOption {
	return func(a *Admin) {
		a.invalidator = inv
	}
}

// WithAdminAuditLogger records mutations to the audit trail.
func WithAdminAuditLogger(l audit.Logger) AdminOption {
	return func(a *Admin) {
		a.audit = l
	}
}

// WithAdminMetrics counts mutations per operation.
func WithAdminMetrics(m *observability.Metrics) AdminOption {
	return func(a *Admin) {
		a.metrics = m
	}
}

// NewAdmin creates the role/permission administration surface.
func NewAdmin(store *Store, logger *observability.Logger, opts ...AdminOption) *Admin {
	a := &Admin{
		db:     store.DB(),
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateRole creates an organization-scoped role. A role with the same
// (organization, key) signals DuplicateRoleError.
func (a *Admin) CreateRole(ctx context.Context, orgID, key, name string) (*Role, error) {
	if _, err := a.store.GetOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	role := &Role{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Key:            key,
		Name:           name,
	}

	if err := a.insertRole(ctx, role); err != nil {
		if isUniqueViolation(err) {
			return nil, &DuplicateRoleError{OrganizationID: orgID, Key: key}
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	a.invalidate(ctx, orgID)
	a.record(ctx, audit.EventTypeRoleCreate, orgID, func(e *audit.Event) {
		e.RoleID = role.ID
		e.Message = "role " + key + " created"
	})
	return role, nil
}

func (a *Admin) insertRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (id, organization_id, key, name, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now().UTC()
	_, err := a.db.ExecContext(ctx, query,
		role.ID, role.OrganizationID, role.Key, role.Name, role.IsDefault, now, now)
	if err != nil {
		return err
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// DeleteRole removes a role and cascades its RolePermission and
// MembershipRole rows in one transaction, leaving no dangling grants.
func (a *Admin) DeleteRole(ctx context.Context, roleID string) error {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM membership_roles WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete membership roles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}

	a.invalidate(ctx, role.OrganizationID)
	a.record(ctx, audit.EventTypeRoleDelete, role.OrganizationID, func(e *audit.Event) {
		e.RoleID = roleID
		e.Message = "role " + role.Key + " deleted"
	})
	return nil
}

// AttachPermissionToRole grants a permission key to a role. The key
// must exist in the global vocabulary; attaching an already-attached
// key is a no-op.
func (a *Admin) AttachPermissionToRole(ctx context.Context, roleID, permissionKey string) error {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}
	if _, err := a.store.GetPermission(ctx, permissionKey); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("unknown permission key %q: %w", permissionKey, ErrNotFound)
		}
		return fmt.Errorf("failed to load permission: %w", err)
	}

	query := `
		INSERT INTO role_permissions (role_id, permission_key)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_key) DO NOTHING
	`
	if _, err := a.db.ExecContext(ctx, query, roleID, permissionKey); err != nil {
		return fmt.Errorf("failed to attach permission: %w", err)
	}

	a.invalidate(ctx, role.OrganizationID)
	a.record(ctx, audit.EventTypePermissionAttach, role.OrganizationID, func(e *audit.Event) {
		e.RoleID = roleID
		e.PermissionKey = permissionKey
	})
	return nil
}

// DetachPermissionFromRole revokes a permission key from a role,
// observable on the next resolution.
func (a *Admin) DetachPermissionFromRole(ctx context.Context, roleID, permissionKey string) error {
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	query := `DELETE FROM role_permissions WHERE role_id = $1 AND permission_key = $2`
	if _, err := a.db.ExecContext(ctx, query, roleID, permissionKey); err != nil {
		return fmt.Errorf("failed to detach permission: %w", err)
	}

	a.invalidate(ctx, role.OrganizationID)
	a.record(ctx, audit.EventTypePermissionDetach, role.OrganizationID, func(e *audit.Event) {
		e.RoleID = roleID
		e.PermissionKey = permissionKey
	})
	return nil
}

// AttachRoleToMembership binds a role to a membership. The role must
// belong to the membership's organization; a cross-tenant binding
// signals CrossTenantError and produces no row. Both organization
// attributes are immutable, so the validation read cannot go stale
// before the insert.
func (a *Admin) AttachRoleToMembership(ctx context.Context, membershipID, roleID string) error {
	membership, err := a.getMembershipByID(ctx, membershipID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}
	role, err := a.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	if role.OrganizationID != membership.OrganizationID {
		return &CrossTenantError{
			RoleOrganizationID:       role.OrganizationID,
			MembershipOrganizationID: membership.OrganizationID,
		}
	}

	query := `
		INSERT INTO membership_roles (membership_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (membership_id, role_id) DO NOTHING
	`
	if _, err := a.db.ExecContext(ctx, query, membershipID, roleID); err != nil {
		return fmt.Errorf("failed to attach role: %w", err)
	}

	a.invalidate(ctx, membership.OrganizationID)
	a.record(ctx, audit.EventTypeMembershipRoleAttach, membership.OrganizationID, func(e *audit.Event) {
		e.UserID = membership.UserID
		e.RoleID = roleID
	})
	return nil
}

// DetachRoleFromMembership removes a role binding. Detaching reverses
// the grant on the next resolution.
func (a *Admin) DetachRoleFromMembership(ctx context.Context, membershipID, roleID string) error {
	membership, err := a.getMembershipByID(ctx, membershipID)
	if err != nil {
		return fmt.Errorf("failed to load membership: %w", err)
	}

	query := `DELETE FROM membership_roles WHERE membership_id = $1 AND role_id = $2`
	if _, err := a.db.ExecContext(ctx, query, membershipID, roleID); err != nil {
		return fmt.Errorf("failed to detach role: %w", err)
	}

	a.invalidate(ctx, membership.OrganizationID)
	a.record(ctx, audit.EventTypeMembershipRoleDetach, membership.OrganizationID, func(e *audit.Event) {
		e.UserID = membership.UserID
		e.RoleID = roleID
	})
	return nil
}

// EnsureDefaultRoles lazily materializes the baseline roles for an
// organization. Idempotent: each role is a single atomic insert whose
// unique-constraint conflict means another writer already created it,
// which is treated as success, not failure. Two concurrent calls
// resolve to exactly one surviving row per default key.
func (a *Admin) EnsureDefaultRoles(ctx context.Context, orgID string) error {
	if _, err := a.store.GetOrganization(ctx, orgID); err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}

	created := false
	for _, def := range DefaultRoles() {
		role := &Role{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			Key:            def.Key,
			Name:           def.Name,
			IsDefault:      true,
		}
		if err := a.insertRole(ctx, role); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("failed to create default role %s: %w", def.Key, err)
		}
		created = true
	}

	if created {
		a.invalidate(ctx, orgID)
		a.record(ctx, audit.EventTypeDefaultRolesEnsured, orgID, nil)
	}
	return nil
}

func (a *Admin) getMembershipByID(ctx context.Context, membershipID string) (*Membership, error) {
	query := `
		SELECT id, user_id, organization_id, is_active, created_at, updated_at
		FROM memberships
		WHERE id = $1
	`

	var m Membership
	err := a.db.QueryRowContext(ctx, query, membershipID).Scan(
		&m.ID, &m.UserID, &m.OrganizationID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *Admin) invalidate(ctx context.Context, orgID string) {
	if a.invalidator == nil {
		return
	}
	if err := a.invalidator.Invalidate(ctx, orgID); err != nil {
		a.logger.WithError(err).WithField("organization_id", orgID).
			Error("failed to broadcast cache invalidation")
	}
}

func (a *Admin) record(ctx context.Context, eventType audit.EventType, orgID string, fill func(*audit.Event)) {
	if a.metrics != nil {
		a.metrics.CountAdminMutation(string(eventType))
	}
	if a.audit == nil {
		return
	}
	event := audit.NewEvent(eventType, audit.StatusSuccess)
	event.OrganizationID = orgID
	if fill != nil {
		fill(event)
	}
	if err := a.audit.Log(ctx, event); err != nil {
		a.logger.WithError(err).Warn("failed to record audit event")
	}
}
