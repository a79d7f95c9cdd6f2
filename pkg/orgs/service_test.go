package orgs

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/pkg/authz"
	"github.com/opsdeck/opsdeck/pkg/observability"
)

func setupTestService(t *testing.T) (*Service, *authz.Store) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, authz.RunMigrations(ctx, db))

	store := authz.NewStore(db)
	require.NoError(t, authz.SeedPermissions(ctx, store))

	logger := observability.NewNopLogger()
	admin := authz.NewAdmin(store, logger)
	return NewService(store, admin, logger), store
}

func TestCreateOrganization(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme HR"})
	require.NoError(t, err)
	assert.NotEmpty(t, org.ID)
	assert.Equal(t, "acme-hr", org.Slug)

	// Default roles are materialized at creation time.
	owner, err := store.GetRoleByKey(ctx, org.ID, authz.RoleKeyOwner)
	require.NoError(t, err)
	assert.True(t, owner.IsDefault)

	member, err := store.GetRoleByKey(ctx, org.ID, authz.RoleKeyMember)
	require.NoError(t, err)
	assert.True(t, member.IsDefault)
}

func TestCreateOrganization_RequiresName(t *testing.T) {
	service, _ := setupTestService(t)

	_, err := service.CreateOrganization(context.Background(), CreateOrganizationInput{})
	assert.Error(t, err)
}

func TestCreateOrganization_ExplicitSlug(t *testing.T) {
	service, _ := setupTestService(t)

	org, err := service.CreateOrganization(context.Background(), CreateOrganizationInput{
		Name: "Acme HR",
		Slug: "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", org.Slug)

	got, err := service.GetOrganizationBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
}

func TestAddMember(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
	require.NoError(t, err)

	membership, err := service.AddMember(ctx, org.ID, AddMemberInput{UserID: user.ID})
	require.NoError(t, err)
	assert.True(t, membership.IsActive)

	roles, err := store.ListMembershipRoles(ctx, membership.ID, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, authz.RoleKeyMember, roles[0].Key)
}

func TestAddMember_ExtraRoles(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
	require.NoError(t, err)

	membership, err := service.AddMember(ctx, org.ID, AddMemberInput{
		UserID:   user.ID,
		RoleKeys: []string{authz.RoleKeyOwner},
	})
	require.NoError(t, err)

	roles, err := store.ListMembershipRoles(ctx, membership.ID, org.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestAddMember_UnknownUser(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = service.AddMember(ctx, org.ID, AddMemberInput{UserID: "missing"})
	assert.Error(t, err)
}

func TestAddMember_UnknownRoleKey(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
	require.NoError(t, err)

	_, err = service.AddMember(ctx, org.ID, AddMemberInput{
		UserID:   user.ID,
		RoleKeys: []string{"no-such-role"},
	})
	assert.Error(t, err)

	// The failed add is all-or-nothing: no membership row remains.
	_, err = store.GetMembership(ctx, user.ID, org.ID)
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestDeactivateAndReactivateMember(t *testing.T) {
	service, store := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
	require.NoError(t, err)
	_, err = service.AddMember(ctx, org.ID, AddMemberInput{UserID: user.ID})
	require.NoError(t, err)

	require.NoError(t, service.DeactivateMember(ctx, org.ID, user.ID))
	membership, err := store.GetMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.False(t, membership.IsActive)

	require.NoError(t, service.ReactivateMember(ctx, org.ID, user.ID))
	membership, err = store.GetMembership(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.True(t, membership.IsActive)
}

func TestDeactivateMember_InvalidatesDecisions(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	cache, err := authz.NewDecisionCache(16)
	require.NoError(t, err)
	service.invalidator = authz.NewLocalInvalidator(cache)

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)
	user, err := service.RegisterUser(ctx, "pat@acme.example", false)
	require.NoError(t, err)
	_, err = service.AddMember(ctx, org.ID, AddMemberInput{UserID: user.ID})
	require.NoError(t, err)

	cache.Put(org.ID, user.ID, "tickets.view", authz.Decision{Granted: true, Reason: authz.ReasonRoleGrant}, cache.Generation(org.ID))
	require.NoError(t, service.DeactivateMember(ctx, org.ID, user.ID))

	_, ok := cache.Get(org.ID, user.ID, "tickets.view")
	assert.False(t, ok)
}

func TestDeactivateMember_NotAMember(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)

	err = service.DeactivateMember(ctx, org.ID, "missing")
	assert.Error(t, err)
}

func TestListMembers(t *testing.T) {
	service, _ := setupTestService(t)
	ctx := context.Background()

	org, err := service.CreateOrganization(ctx, CreateOrganizationInput{Name: "Acme"})
	require.NoError(t, err)

	alice, err := service.RegisterUser(ctx, "alice@acme.example", false)
	require.NoError(t, err)
	bob, err := service.RegisterUser(ctx, "bob@acme.example", false)
	require.NoError(t, err)

	_, err = service.AddMember(ctx, org.ID, AddMemberInput{UserID: alice.ID, RoleKeys: []string{authz.RoleKeyOwner}})
	require.NoError(t, err)
	_, err = service.AddMember(ctx, org.ID, AddMemberInput{UserID: bob.ID})
	require.NoError(t, err)

	members, err := service.ListMembers(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	byEmail := make(map[string]*Member)
	for _, m := range members {
		byEmail[m.Email] = m
	}
	assert.Len(t, byEmail["alice@acme.example"].Roles, 2)
	assert.Len(t, byEmail["bob@acme.example"].Roles, 1)
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "acme-hr", generateSlug("Acme HR"))
	assert.Equal(t, "acme-co", generateSlug("Acme & Co!"))
	assert.Equal(t, "acme", generateSlug("--Acme--"))
}
