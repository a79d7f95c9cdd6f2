package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// newTestStore opens an in-memory sqlite database with the full schema
// and seeded permission vocabulary.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Each sqlite :memory: connection is a separate database; cap the
	// pool so concurrent test goroutines share the one that was
	// migrated.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))

	store := NewStore(db)
	require.NoError(t, SeedPermissions(ctx, store))
	return store
}

func seedUser(t *testing.T, store *Store, email string, superAdmin bool) *User {
	t.Helper()
	user := &User{Email: email, IsSuperAdmin: superAdmin}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func seedOrg(t *testing.T, store *Store, name, slug string) *Organization {
	t.Helper()
	org := &Organization{Name: name, Slug: slug}
	require.NoError(t, store.CreateOrganization(context.Background(), org))
	return org
}

func seedMembership(t *testing.T, store *Store, userID, orgID string, active bool) *Membership {
	t.Helper()
	m := &Membership{UserID: userID, OrganizationID: orgID, IsActive: active}
	require.NoError(t, store.CreateMembership(context.Background(), m))
	return m
}

// seedGrantedRole creates a role, attaches the given permission keys
// and binds it to the membership.
func seedGrantedRole(t *testing.T, admin *Admin, orgID, membershipID, key string, permissionKeys ...string) *Role {
	t.Helper()
	ctx := context.Background()

	role, err := admin.CreateRole(ctx, orgID, key, key)
	require.NoError(t, err)
	for _, pk := range permissionKeys {
		require.NoError(t, admin.AttachPermissionToRole(ctx, role.ID, pk))
	}
	require.NoError(t, admin.AttachRoleToMembership(ctx, membershipID, role.ID))
	return role
}

func testLogger() *observability.Logger {
	return observability.NewNopLogger()
}
