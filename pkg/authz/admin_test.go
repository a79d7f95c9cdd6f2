package authz

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRole(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")

	role, err := admin.CreateRole(ctx, org.ID, "auditor", "Auditor")
	require.NoError(t, err)
	assert.NotEmpty(t, role.ID)
	assert.Equal(t, org.ID, role.OrganizationID)
	assert.False(t, role.IsDefault)

	got, err := store.GetRoleByKey(ctx, org.ID, "auditor")
	require.NoError(t, err)
	assert.Equal(t, role.ID, got.ID)
}

func TestCreateRole_DuplicateKey(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")

	_, err := admin.CreateRole(ctx, org.ID, "auditor", "Auditor")
	require.NoError(t, err)

	_, err = admin.CreateRole(ctx, org.ID, "auditor", "Auditor Again")
	require.Error(t, err)
	assert.True(t, IsDuplicateRole(err))

	var dup *DuplicateRoleError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, org.ID, dup.OrganizationID)
	assert.Equal(t, "auditor", dup.Key)
}

func TestCreateRole_SameKeyAcrossOrgs(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	orgA := seedOrg(t, store, "Acme", "acme")
	orgB := seedOrg(t, store, "Globex", "globex")

	a, err := admin.CreateRole(ctx, orgA.ID, "auditor", "Auditor")
	require.NoError(t, err)
	b, err := admin.CreateRole(ctx, orgB.ID, "auditor", "Auditor")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCreateRole_UnknownOrganization(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())

	_, err := admin.CreateRole(context.Background(), "no-such-org", "auditor", "Auditor")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureDefaultRoles_Idempotent(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")

	require.NoError(t, admin.EnsureDefaultRoles(ctx, org.ID))
	require.NoError(t, admin.EnsureDefaultRoles(ctx, org.ID))

	roles, err := store.ListRoles(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, 2)

	keys := map[string]bool{}
	for _, r := range roles {
		assert.True(t, r.IsDefault)
		keys[r.Key] = true
	}
	assert.True(t, keys[RoleKeyOwner])
	assert.True(t, keys[RoleKeyMember])
}

func TestEnsureDefaultRoles_ConcurrentCallsCreateOneRowPerKey(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")

	// Two writers racing to materialize the same org's defaults: the
	// loser of each insert sees the unique-constraint conflict and
	// treats it as success.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = admin.EnsureDefaultRoles(ctx, org.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	roles, err := store.ListRoles(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, len(DefaultRoles()))

	seen := map[string]int{}
	for _, r := range roles {
		seen[r.Key]++
	}
	for _, def := range DefaultRoles() {
		assert.Equal(t, 1, seen[def.Key])
	}
}

func TestEnsureDefaultRoles_KeepsCustomRoles(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")
	_, err := admin.CreateRole(ctx, org.ID, "auditor", "Auditor")
	require.NoError(t, err)

	require.NoError(t, admin.EnsureDefaultRoles(ctx, org.ID))

	roles, err := store.ListRoles(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 3)
}

func TestAttachPermissionToRole(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")
	role, err := admin.CreateRole(ctx, org.ID, "viewer", "Viewer")
	require.NoError(t, err)

	require.NoError(t, admin.AttachPermissionToRole(ctx, role.ID, "tickets.view"))
	// Attaching again is a no-op, not an error.
	require.NoError(t, admin.AttachPermissionToRole(ctx, role.ID, "tickets.view"))

	keys, err := store.ListRolePermissionKeys(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.view"}, keys)
}

func TestAttachPermissionToRole_UnknownKey(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	org := seedOrg(t, store, "Acme", "acme")
	role, err := admin.CreateRole(ctx, org.ID, "viewer", "Viewer")
	require.NoError(t, err)

	err = admin.AttachPermissionToRole(ctx, role.ID, "not.in.vocabulary")
	require.ErrorIs(t, err, ErrNotFound)

	keys, err := store.ListRolePermissionKeys(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAttachRoleToMembership_CrossTenant(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	user := seedUser(t, store, "alice@acme.test", false)
	orgA := seedOrg(t, store, "Acme", "acme")
	orgB := seedOrg(t, store, "Globex", "globex")
	membership := seedMembership(t, store, user.ID, orgA.ID, true)

	roleB, err := admin.CreateRole(ctx, orgB.ID, "auditor", "Auditor")
	require.NoError(t, err)

	err = admin.AttachRoleToMembership(ctx, membership.ID, roleB.ID)
	require.Error(t, err)
	assert.True(t, IsCrossTenantViolation(err))

	var cte *CrossTenantError
	require.ErrorAs(t, err, &cte)
	assert.Equal(t, orgB.ID, cte.RoleOrganizationID)
	assert.Equal(t, orgA.ID, cte.MembershipOrganizationID)

	// The rejected binding left no row behind.
	roles, err := store.ListMembershipRoles(ctx, membership.ID, orgA.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestAttachRoleToMembership_Idempotent(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	user := seedUser(t, store, "bob@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")
	membership := seedMembership(t, store, user.ID, org.ID, true)

	role, err := admin.CreateRole(ctx, org.ID, "viewer", "Viewer")
	require.NoError(t, err)

	require.NoError(t, admin.AttachRoleToMembership(ctx, membership.ID, role.ID))
	require.NoError(t, admin.AttachRoleToMembership(ctx, membership.ID, role.ID))

	roles, err := store.ListMembershipRoles(ctx, membership.ID, org.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestDetachRoleFromMembership_Missing(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	user := seedUser(t, store, "carol@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")
	membership := seedMembership(t, store, user.ID, org.ID, true)

	role, err := admin.CreateRole(ctx, org.ID, "viewer", "Viewer")
	require.NoError(t, err)

	// Detaching a role that was never attached is a no-op.
	require.NoError(t, admin.DetachRoleFromMembership(ctx, membership.ID, role.ID))
}

func TestDeleteRole_CascadesGrants(t *testing.T) {
	store := newTestStore(t)
	admin := NewAdmin(store, testLogger())
	ctx := context.Background()

	user := seedUser(t, store, "dave@acme.test", false)
	org := seedOrg(t, store, "Acme", "acme")
	membership := seedMembership(t, store, user.ID, org.ID, true)
	role := seedGrantedRole(t, admin, org.ID, membership.ID, "viewer", "tickets.view")

	require.NoError(t, admin.DeleteRole(ctx, role.ID))

	_, err := store.GetRole(ctx, role.ID)
	require.ErrorIs(t, err, ErrNotFound)

	roles, err := store.ListMembershipRoles(ctx, membership.ID, org.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	// The key is free for reuse after deletion.
	_, err = admin.CreateRole(ctx, org.ID, "viewer", "Viewer")
	require.NoError(t, err)
}
