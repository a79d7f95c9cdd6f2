// Package orgs provides organization and membership lifecycle.
//
// # Overview
//
// The Service wraps the entitlement store and administration surface:
// creating an organization materializes its default roles, adding a
// member attaches the default member role, and deactivating a member
// invalidates the organization's cached decisions so the revocation is
// observable on the next check.
//
// # Usage
//
//	service := orgs.NewService(store, admin, logger,
//	    orgs.WithInvalidator(invalidator),
//	    orgs.WithAuditLogger(auditLog))
//
//	org, err := service.CreateOrganization(ctx, orgs.CreateOrganizationInput{Name: "Acme HR"})
//	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
//	membership, err := service.AddMember(ctx, org.ID, orgs.AddMemberInput{UserID: user.ID})
//
// # Related Packages
//
//   - pkg/authz: permission resolution over the graph this package manages
//   - pkg/audit: lifecycle event recording
package orgs
