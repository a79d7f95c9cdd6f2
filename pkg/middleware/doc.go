// Package middleware provides HTTP middleware for identity extraction,
// organization context, request correlation, and rate limiting.
//
// # CRITICAL: Middleware Ordering Requirements
//
// The authorization gate depends on context set by earlier middleware.
// Incorrect order makes every check deny with NO_ORG_CONTEXT or reject
// the request as unauthenticated.
//
// REQUIRED ORDERING (outer to inner):
//  1. RequestIDMiddleware - correlation ID for logs and audit events
//  2. AuthMiddleware - builds the principal from identity headers
//  3. OrgContextMiddleware - resolves the organization and scopes the principal
//  4. authz.PermissionMiddleware - the authorization gate
//
// Example (correct):
//
//	router.Use(middleware.RequestIDMiddleware)
//	router.Use(authMW.Handler)
//	router.Use(middleware.OrgContextMiddleware(orgService))
//	protected.Use(perms.RequirePermission("hr.employees.view"))
//
// Example (WRONG - every check denies):
//
//	router.Use(perms.RequirePermission("hr.employees.view")) // no principal or org yet
//	router.Use(authMW.Handler)
//
// WHY THIS MATTERS:
//   - If the gate runs before OrgContextMiddleware, the principal has
//     no organization and every check denies with NO_ORG_CONTEXT
//   - If OrgContextMiddleware runs before AuthMiddleware, it cannot
//     scope the principal (none exists yet)
//
// # Rate Limiting
//
// RateLimitMiddleware uses an in-process token bucket per principal.
// DistributedRateLimitMiddleware shares a counter window via Redis and
// fails open when Redis is unavailable.
//
// # Related Packages
//
//   - pkg/authz: the authorization gate enforced after this middleware
//   - pkg/orgs: organization lookup for OrgContextMiddleware
package middleware
