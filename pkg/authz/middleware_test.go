package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/contextkeys"
)

func guardedRequest(t *testing.T, guard func(http.Handler) http.Handler, principal *Principal) *httptest.ResponseRecorder {
	t.Helper()

	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if principal != nil {
		req = req.WithContext(contextkeys.WithPrincipal(req.Context(), principal))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequirePermission(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	gate := NewGate(NewResolver(store, testLogger()), testLogger())
	guard := NewPermissionMiddleware(gate).RequirePermission("tickets.view")

	user := seedUser(t, store, "alice@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")
	membership := seedMembership(t, store, user.ID, org.ID, true)
	seedGrantedRole(t, admin, org.ID, membership.ID, "viewer", "tickets.view")

	outsider := seedUser(t, store, "mallory@other.test", false)

	t.Run("granted", func(t *testing.T) {
		rec := guardedRequest(t, guard, &Principal{UserID: user.ID, OrganizationID: org.ID})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("no principal", func(t *testing.T) {
		rec := guardedRequest(t, guard, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	})

	t.Run("non-member denied", func(t *testing.T) {
		rec := guardedRequest(t, guard, &Principal{UserID: outsider.ID, OrganizationID: org.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no org context denied", func(t *testing.T) {
		rec := guardedRequest(t, guard, &Principal{UserID: user.ID})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

// Every denial reason produces the identical response body, so a
// caller cannot distinguish "not a member" from "missing permission"
// by probing.
func TestRequirePermission_UniformDenialBody(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	gate := NewGate(NewResolver(store, testLogger()), testLogger())
	guard := NewPermissionMiddleware(gate).RequirePermission("tickets.manage")

	viewer := seedUser(t, store, "viewer@acme.test", false)
	outsider := seedUser(t, store, "outsider@acme.test", false)
	bare := seedUser(t, store, "bare@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")

	viewerMembership := seedMembership(t, store, viewer.ID, org.ID, true)
	seedGrantedRole(t, admin, org.ID, viewerMembership.ID, "viewer", "tickets.view")
	seedMembership(t, store, bare.ID, org.ID, true)

	principals := []Principal{
		{UserID: outsider.ID, OrganizationID: org.ID}, // NOT_A_MEMBER
		{UserID: bare.ID, OrganizationID: org.ID},     // NO_ROLES
		{UserID: viewer.ID, OrganizationID: org.ID},   // PERMISSION_NOT_GRANTED
		{UserID: viewer.ID},                           // NO_ORG_CONTEXT
	}

	for _, p := range principals {
		p := p
		rec := guardedRequest(t, guard, &p)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestRequireAnyPermission(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	gate := NewGate(NewResolver(store, testLogger()), testLogger())
	guard := NewPermissionMiddleware(gate).RequireAnyPermission("tickets.manage", "tickets.view")

	user := seedUser(t, store, "alice@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")
	membership := seedMembership(t, store, user.ID, org.ID, true)
	seedGrantedRole(t, admin, org.ID, membership.ID, "viewer", "tickets.view")

	rec := guardedRequest(t, guard, &Principal{UserID: user.ID, OrganizationID: org.ID})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrincipalFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, PrincipalFromRequest(req))

	p := &Principal{UserID: "user-1"}
	req = req.WithContext(contextkeys.WithPrincipal(req.Context(), p))
	assert.Equal(t, p, PrincipalFromRequest(req))
}
