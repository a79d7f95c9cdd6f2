package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/authz"
)

type stubOrgLookup struct {
	orgs map[string]*authz.Organization
}

func (s *stubOrgLookup) GetOrganization(_ context.Context, orgID string) (*authz.Organization, error) {
	if org, ok := s.orgs[orgID]; ok {
		return org, nil
	}
	return nil, authz.ErrNotFound
}

func (s *stubOrgLookup) GetOrganizationBySlug(_ context.Context, slug string) (*authz.Organization, error) {
	for _, org := range s.orgs {
		if org.Slug == slug {
			return org, nil
		}
	}
	return nil, authz.ErrNotFound
}

func newStubLookup() *stubOrgLookup {
	return &stubOrgLookup{orgs: map[string]*authz.Organization{
		"org-1": {ID: "org-1", Name: "Acme", Slug: "acme"},
	}}
}

func orgRouter(lookup OrgLookup, captured **authz.Organization, principal **authz.Principal) *mux.Router {
	router := mux.NewRouter()
	router.Use(OrgContextMiddleware(lookup))
	handler := func(w http.ResponseWriter, r *http.Request) {
		*captured = GetOrganization(r)
		*principal = GetPrincipal(r)
		w.WriteHeader(http.StatusOK)
	}
	router.HandleFunc("/orgs/{org_id}/things", handler)
	router.HandleFunc("/by-slug/{org_slug}/things", handler)
	router.HandleFunc("/global", handler)
	return router
}

func TestOrgContextMiddleware_ByID(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal
	router := orgRouter(newStubLookup(), &org, &principal)

	req := httptest.NewRequest("GET", "/orgs/org-1/things", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, org)
	assert.Equal(t, "org-1", org.ID)
}

func TestOrgContextMiddleware_BySlug(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal
	router := orgRouter(newStubLookup(), &org, &principal)

	req := httptest.NewRequest("GET", "/by-slug/acme/things", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, org)
	assert.Equal(t, "org-1", org.ID)
}

func TestOrgContextMiddleware_ByHeader(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal
	router := orgRouter(newStubLookup(), &org, &principal)

	req := httptest.NewRequest("GET", "/global", nil)
	req.Header.Set(HeaderOrgID, "org-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, org)
	assert.Equal(t, "org-1", org.ID)
}

func TestOrgContextMiddleware_NotFound(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal
	router := orgRouter(newStubLookup(), &org, &principal)

	req := httptest.NewRequest("GET", "/orgs/missing/things", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, org)
}

func TestOrgContextMiddleware_NoOrgReference(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal
	router := orgRouter(newStubLookup(), &org, &principal)

	req := httptest.NewRequest("GET", "/global", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, org)
}

func TestOrgContextMiddleware_ScopesPrincipal(t *testing.T) {
	var org *authz.Organization
	var principal *authz.Principal

	router := mux.NewRouter()
	auth := NewAuthMiddleware(false)
	router.Use(auth.Handler)
	router.Use(OrgContextMiddleware(newStubLookup()))
	router.HandleFunc("/orgs/{org_id}/things", func(w http.ResponseWriter, r *http.Request) {
		org = GetOrganization(r)
		principal = GetPrincipal(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/orgs/org-1/things", nil)
	req.Header.Set(HeaderUserID, "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, "org-1", principal.OrganizationID)
	_ = org
}
