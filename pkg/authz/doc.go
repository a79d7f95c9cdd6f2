// Package authz implements the multi-tenant role-based access control
// engine for OpsDeck.
//
// # Overview
//
// The engine decides, for a user acting inside an organization,
// whether a requested capability (a permission key such as
// "hr.employees.view") is granted. The relationship graph is
//
//	user -> membership -> role -> permission
//
// with memberships and roles scoped per organization and permission
// keys forming a global, shared vocabulary. It is a security boundary:
// incorrect caching, stale reads, or scope errors here are directly
// exploitable.
//
// # Components
//
//   - Store: the entitlement store over database/sql. Holds users,
//     organizations, memberships, roles, permissions and the two join
//     tables. No caching logic of its own.
//   - Resolver: pure decision logic. Resolve(userID, orgID, key)
//     returns a Decision{Granted, Reason}.
//   - Gate: the request-time enforcement point. Wraps the resolver,
//     handles the super-admin bypass outcome and the
//     missing-organization edge, and fails closed on any resolver
//     error.
//   - Admin: the mutation surface (create role, attach permission to
//     role, attach role to membership, ensure default roles). Each
//     mutation invalidates the affected organization's cached
//     decisions before returning.
//
// # Resolution algorithm
//
// Resolve evaluates, in order:
//
//  1. Super-admin bypass. A user with is_super_admin grants
//     everything, everywhere, without touching organization-scoped
//     data. Checked first; this is the only call site that consults
//     the flag.
//  2. Active membership for (user, organization). Missing or inactive
//     denies with NOT_A_MEMBER.
//  3. Roles attached to the membership, always re-scoped through the
//     organization in the request context. No roles denies with
//     NO_ROLES.
//  4. Union of permission keys across those roles. Containment grants
//     with ROLE_GRANT, otherwise PERMISSION_NOT_GRANTED. Unknown or
//     empty keys deny deterministically.
//
// # Tenancy invariants
//
// A role is never resolved by ID without confirming it belongs to the
// organization in the request context; the membership-role join
// filters on roles.organization_id so a cross-tenant role-ID reuse
// cannot leak permissions. Admin rejects cross-tenant bindings with
// CrossTenantError before touching the join table.
//
// # Caching
//
// The resolver runs uncached by default: every resolution reads
// through the store, inheriting its read-after-write transaction
// semantics. The optional DecisionCache trades that for throughput
// while keeping the contract, because invalidation is exact per
// organization: every Admin mutation purges the organization's entry
// synchronously, and the RedisInvalidator broadcasts the purge to
// sibling server instances. There is no TTL expiry path.
//
// # Enforcement
//
// PermissionMiddleware produces per-key HTTP guards:
//
//	guard := pm.RequirePermission("hr.employees.view")
//	router.Handle("/employees", guard(listEmployeesHandler)).Methods("GET")
//
// Guards read the Principal placed in the request context by the
// authentication middleware; credentials are never handled here. All
// denials produce the same forbidden body regardless of reason, so a
// caller cannot enumerate which roles it lacks by probing; the
// distinct reasons go to the structured log and the audit trail.
//
// # Administration errors
//
// DuplicateRoleError and CrossTenantError are distinguishable to the
// acting administrator (IsDuplicateRole, IsCrossTenantViolation).
// EnsureDefaultRoles is idempotent under concurrency: the losing
// writer of a create race observes the unique-constraint conflict and
// treats it as success.
package authz
