package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/contextkeys"
)

// HeaderOrgID selects the acting organization for requests whose route
// carries no organization segment.
const HeaderOrgID = "X-Opsdeck-Org-Id"

// OrgLookup resolves organizations by ID or slug. Satisfied by
// orgs.Service and authz.Store.
type OrgLookup interface {
	GetOrganization(ctx context.Context, orgID string) (*authz.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*authz.Organization, error)
}

// OrgContextMiddleware resolves the request's organization from the
// route (org_id or org_slug variable) or the organization header, and
// binds it to both the request context and the principal. Requests
// without any organization reference pass through; the authorization
// gate denies them if they hit an org-scoped check.
func OrgContextMiddleware(lookup OrgLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var org *authz.Organization
			var err error

			vars := mux.Vars(r)
			switch {
			case vars["org_id"] != "":
				org, err = lookup.GetOrganization(r.Context(), vars["org_id"])
			case vars["org_slug"] != "":
				org, err = lookup.GetOrganizationBySlug(r.Context(), vars["org_slug"])
			case r.Header.Get(HeaderOrgID) != "":
				org, err = lookup.GetOrganization(r.Context(), r.Header.Get(HeaderOrgID))
			default:
				next.ServeHTTP(w, r)
				return
			}

			if err != nil {
				http.Error(w, "Organization not found", http.StatusNotFound)
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)

			// Rebind the principal with the organization scope. The
			// original principal value is shared across goroutines, so
			// it is copied rather than mutated.
			if principal := GetPrincipal(r); principal != nil {
				scoped := *principal
				scoped.OrganizationID = org.ID
				ctx = contextkeys.WithPrincipal(ctx, &scoped)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOrganization extracts the resolved organization from the request
func GetOrganization(r *http.Request) *authz.Organization {
	value := r.Context().Value(contextkeys.OrgKey)
	if value == nil {
		return nil
	}
	org, ok := value.(*authz.Organization)
	if !ok {
		return nil
	}
	return org
}
