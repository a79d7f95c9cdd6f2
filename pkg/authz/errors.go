package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("authz: not found")

// DuplicateRoleError signals that a role with the same
// (organization, key) already exists. It is surfaced to the acting
// administrator as a distinguishable error.
type DuplicateRoleError struct {
	OrganizationID string
	Key            string
}

func (e *DuplicateRoleError) Error() string {
	return fmt.Sprintf("role %q already exists in organization %s", e.Key, e.OrganizationID)
}

// IsDuplicateRole reports whether err is a DuplicateRoleError.
func IsDuplicateRole(err error) bool {
	var dup *DuplicateRoleError
	return errors.As(err, &dup)
}

// CrossTenantError signals an attempt to bind entities from different
// organizations, e.g. attaching a role from org A to a membership in
// org B. The mutation is rejected, never silently corrected.
type CrossTenantError struct {
	RoleOrganizationID       string
	MembershipOrganizationID string
}

func (e *CrossTenantError) Error() string {
	return fmt.Sprintf("cross-tenant violation: role belongs to organization %s, membership to %s",
		e.RoleOrganizationID, e.MembershipOrganizationID)
}

// IsCrossTenantViolation reports whether err is a CrossTenantError.
func IsCrossTenantViolation(err error) bool {
	var cte *CrossTenantError
	return errors.As(err, &cte)
}

// DeniedError is produced by the gate on every denial. The HTTP-facing
// message is uniform; the reason is kept for internal audit logging
// and never leaks which roles the caller lacks.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return "forbidden"
}

// IsDenied reports whether err is a gate denial and returns its reason.
func IsDenied(err error) (Reason, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

// isUniqueViolation detects a unique-constraint conflict from either
// the postgres or the sqlite driver. Used to resolve create races:
// the losing writer of a concurrent ensure-default-roles sees the
// conflict and treats it as success.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// mattn/go-sqlite3 reports "UNIQUE constraint failed: ..."
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
