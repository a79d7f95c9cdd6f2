package authz

import (
	"time"
)

// User is a global identity. Users exist independently of any
// organization; tenancy is expressed through Memberships.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Organization is the tenant boundary. Roles and memberships are
// scoped to exactly one organization.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership joins a user into an organization. A user has at most one
// membership per organization. Only active memberships participate in
// authorization; deactivation revokes derived access immediately but
// retains the membership's role assignments.
type Membership struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission is one capability in the global vocabulary, identified by
// a key such as "hr.employees.view". Permissions are not
// organization-scoped; which roles grant them is.
type Permission struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Role is an organization-local named bundle of permissions, unique by
// (organization, key). A role created in one organization is invisible
// to every other organization even when the key string matches.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	IsDefault      bool      `json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal carries the authenticated request identity. It is built by
// the authentication middleware from upstream-auth data and never
// re-derived from the raw request inside this package.
type Principal struct {
	UserID          string    `json:"user_id"`
	OrganizationID  string    `json:"organization_id,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Reason describes why a resolution granted or denied access.
type Reason string

const (
	// ReasonSuperAdminBypass grants everything, everywhere. Checked
	// first; the resolver does not touch organization-scoped data.
	ReasonSuperAdminBypass Reason = "SUPER_ADMIN_BYPASS"

	// ReasonRoleGrant means an attached role carries the permission.
	ReasonRoleGrant Reason = "ROLE_GRANT"

	// ReasonNotAMember means no active membership exists for the
	// (user, organization) pair.
	ReasonNotAMember Reason = "NOT_A_MEMBER"

	// ReasonNoRoles means the membership exists but holds no roles.
	ReasonNoRoles Reason = "NO_ROLES"

	// ReasonPermissionNotGranted means none of the membership's roles
	// carry the requested permission key.
	ReasonPermissionNotGranted Reason = "PERMISSION_NOT_GRANTED"

	// ReasonNoOrgContext means the request carried no organization;
	// the gate denies before invoking the resolver.
	ReasonNoOrgContext Reason = "NO_ORG_CONTEXT"

	// ReasonResolutionFailed means the resolver could not complete
	// (store unavailable, transaction failure). The gate fails closed.
	ReasonResolutionFailed Reason = "RESOLUTION_FAILED"
)

// Decision is the outcome of a permission resolution.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason"`
}

// Default role keys materialized per organization by
// EnsureDefaultRoles before any membership-role assignment.
const (
	RoleKeyOwner  = "owner"
	RoleKeyMember = "member"
)

// DefaultRoles returns the baseline roles every organization carries.
func DefaultRoles() []Role {
	return []Role{
		{Key: RoleKeyOwner, Name: "Owner", IsDefault: true},
		{Key: RoleKeyMember, Name: "Member", IsDefault: true},
	}
}
