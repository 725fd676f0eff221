package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapSeedsCatalogAndRoles(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	require.NoError(t, Bootstrap(ctx, store, testLogger()))

	perms, err := store.ListPermissions(ctx, PermissionFilter{})
	require.NoError(t, err)
	assert.Len(t, perms, len(basePermissions))
	for _, p := range perms {
		assert.True(t, p.IsSystem, "seeded permission %s must be a system record", p.Name)
		assert.NotEmpty(t, p.ResourceType)
		assert.NotEmpty(t, p.Action)
	}

	roles, err := store.ListRoles(ctx, RoleFilter{})
	require.NoError(t, err)
	assert.Len(t, roles, len(baseRoles))

	byName := make(map[string]Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
		assert.True(t, r.IsSystem, "seeded role %s must be a system record", r.Name)
	}

	super, ok := byName[SuperuserRole]
	require.True(t, ok)
	assert.Len(t, super.PermissionIDs, len(basePermissions), "superuser holds the full catalog")

	user, ok := byName["user"]
	require.True(t, ok)
	assert.True(t, user.IsDefault, "the user role is granted to new users")
	assert.Len(t, user.PermissionIDs, 3)

	guest, ok := byName["guest"]
	require.True(t, ok)
	assert.False(t, guest.IsDefault)
	assert.Len(t, guest.PermissionIDs, 1)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	require.NoError(t, Bootstrap(ctx, store, testLogger()))

	firstPerms, err := store.ListPermissions(ctx, PermissionFilter{})
	require.NoError(t, err)
	firstRoles, err := store.ListRoles(ctx, RoleFilter{})
	require.NoError(t, err)

	require.NoError(t, Bootstrap(ctx, store, testLogger()))

	perms, err := store.ListPermissions(ctx, PermissionFilter{})
	require.NoError(t, err)
	assert.Len(t, perms, len(firstPerms))

	roles, err := store.ListRoles(ctx, RoleFilter{})
	require.NoError(t, err)
	assert.Len(t, roles, len(firstRoles))
}

func TestBootstrapAdminGrantsSubsetOfCatalog(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	require.NoError(t, Bootstrap(ctx, store, testLogger()))

	roles, err := store.ListRoles(ctx, RoleFilter{})
	require.NoError(t, err)

	for _, r := range roles {
		if r.Name != "admin" {
			continue
		}
		assert.NotEmpty(t, r.PermissionIDs)
		assert.Less(t, len(r.PermissionIDs), len(basePermissions),
			"admin holds less than the full catalog")
		return
	}
	t.Fatalf("admin role not seeded")
}
