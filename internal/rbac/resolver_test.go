package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type mockCatalog struct {
	identities  map[uuid.UUID]*Identity
	assignments map[uuid.UUID][]RoleAssignment
	roles       map[uuid.UUID]Role
	rolePerms   map[uuid.UUID][]string
	allPerms    []string
	failWith    error

	getIdentityCalls     int
	listAssignmentsCalls int
	lastScope            string
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		identities:  make(map[uuid.UUID]*Identity),
		assignments: make(map[uuid.UUID][]RoleAssignment),
		roles:       make(map[uuid.UUID]Role),
		rolePerms:   make(map[uuid.UUID][]string),
	}
}

func (m *mockCatalog) GetIdentity(ctx context.Context, userID uuid.UUID) (*Identity, error) {
	m.getIdentityCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	ident, ok := m.identities[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return ident, nil
}

func (m *mockCatalog) ListActiveAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]RoleAssignment, error) {
	m.listAssignmentsCalls++
	m.lastScope = scope
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []RoleAssignment
	for _, a := range m.assignments[userID] {
		if a.AppIdentifier == "" || a.AppIdentifier == scope {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []Role
	for _, id := range ids {
		if r, ok := m.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListRolePermissionNames(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	seen := make(map[string]struct{})
	var out []string
	for _, id := range roleIDs {
		for _, name := range m.rolePerms[id] {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *mockCatalog) ListAllPermissionNames(ctx context.Context) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.allPerms, nil
}

func (m *mockCatalog) addRole(name string, perms ...string) Role {
	role := Role{ID: uuid.New(), Name: name, DisplayName: name}
	m.roles[role.ID] = role
	m.rolePerms[role.ID] = perms
	return role
}

func (m *mockCatalog) assign(userID uuid.UUID, role Role, scope string) {
	m.assignments[userID] = append(m.assignments[userID], RoleAssignment{
		ID:            uuid.New(),
		UserID:        userID,
		RoleID:        role.ID,
		AppIdentifier: scope,
		IsActive:      true,
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resolverWithCache(t *testing.T, catalog Catalog) (*Resolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResolver(catalog, NewCache(client, time.Hour), testLogger(), nil), mr
}

func TestResolveUnknownUserYieldsEmptySet(t *testing.T) {
	catalog := newMockCatalog()
	resolver := NewResolver(catalog, nil, testLogger(), nil)

	set, err := resolver.Resolve(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(set.Permissions) != 0 || len(set.Roles) != 0 {
		t.Fatalf("unknown user must resolve to an empty set, got %+v", set)
	}
}

func TestResolveSuperuserGetsFullCatalog(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID, IsSuperuser: true}
	catalog.allPerms = []string{"records:read", "records:create", "files:upload"}
	resolver := NewResolver(catalog, nil, testLogger(), nil)

	set, err := resolver.Resolve(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !set.IsSuperuser {
		t.Fatalf("expected superuser flag")
	}
	if len(set.Roles) != 1 || set.Roles[0] != SuperuserRole {
		t.Fatalf("unexpected roles: %v", set.Roles)
	}
	if len(set.Permissions) != 3 {
		t.Fatalf("expected the full catalog, got %v", set.Permissions)
	}
	if catalog.listAssignmentsCalls != 0 {
		t.Fatalf("superuser resolution must not walk assignments")
	}
}

func TestResolveExpandsAndDeduplicates(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	editor := catalog.addRole("editor", "records:*", "records:read")
	viewer := catalog.addRole("viewer", "records:read")
	catalog.assign(userID, editor, "")
	catalog.assign(userID, viewer, "")
	resolver := NewResolver(catalog, nil, testLogger(), nil)

	set, err := resolver.Resolve(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []string{"records:*", "records:create", "records:delete", "records:list", "records:read", "records:update"}
	if !sort.StringsAreSorted(set.Permissions) {
		t.Fatalf("permissions must be sorted: %v", set.Permissions)
	}
	if len(set.Permissions) != len(want) {
		t.Fatalf("got %v, want %v", set.Permissions, want)
	}
	for i, name := range want {
		if set.Permissions[i] != name {
			t.Fatalf("got %v, want %v", set.Permissions, want)
		}
	}
	if len(set.Roles) != 2 {
		t.Fatalf("expected both role names, got %v", set.Roles)
	}
}

func TestResolveScopeUnionsGlobalAndScopedRoles(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	global := catalog.addRole("viewer", "records:read")
	scoped := catalog.addRole("blog-editor", "posts:create")
	catalog.assign(userID, global, "")
	catalog.assign(userID, scoped, "blog-app")
	resolver := NewResolver(catalog, nil, testLogger(), nil)
	ctx := context.Background()

	set, err := resolver.Resolve(ctx, userID, "blog-app")
	if err != nil {
		t.Fatalf("resolve scoped: %v", err)
	}
	if len(set.Permissions) != 2 {
		t.Fatalf("scoped resolution must union global grants, got %v", set.Permissions)
	}

	set, err = resolver.Resolve(ctx, userID, "")
	if err != nil {
		t.Fatalf("resolve global: %v", err)
	}
	if len(set.Permissions) != 1 || set.Permissions[0] != "records:read" {
		t.Fatalf("global resolution must exclude scoped grants, got %v", set.Permissions)
	}
}

func TestResolveCacheHitSkipsCatalog(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	role := catalog.addRole("viewer", "records:read")
	catalog.assign(userID, role, "")
	resolver, _ := resolverWithCache(t, catalog)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, userID, ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if catalog.getIdentityCalls != 1 {
		t.Fatalf("expected one catalog hit, got %d", catalog.getIdentityCalls)
	}

	set, err := resolver.Resolve(ctx, userID, "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if catalog.getIdentityCalls != 1 {
		t.Fatalf("second resolve must be served from cache, got %d catalog hits", catalog.getIdentityCalls)
	}
	if len(set.Permissions) != 1 {
		t.Fatalf("unexpected cached set: %v", set.Permissions)
	}
}

func TestResolveCacheOutageDegradesToCatalog(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	role := catalog.addRole("viewer", "records:read")
	catalog.assign(userID, role, "")
	resolver, mr := resolverWithCache(t, catalog)

	mr.Close()

	set, err := resolver.Resolve(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("cache outage must not fail resolution: %v", err)
	}
	if len(set.Permissions) != 1 || set.Permissions[0] != "records:read" {
		t.Fatalf("unexpected set: %v", set.Permissions)
	}
}

func TestResolveCatalogOutageSurfacesError(t *testing.T) {
	catalog := newMockCatalog()
	catalog.failWith = ErrCatalogUnavailable
	resolver := NewResolver(catalog, nil, testLogger(), nil)

	_, err := resolver.Resolve(context.Background(), uuid.New(), "")
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestResolveFreshObservesMutations(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	viewer := catalog.addRole("viewer", "records:read")
	catalog.assign(userID, viewer, "")
	resolver, _ := resolverWithCache(t, catalog)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, userID, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	editor := catalog.addRole("editor", "records:update")
	catalog.assign(userID, editor, "")

	set, err := resolver.ResolveFresh(ctx, userID, "")
	if err != nil {
		t.Fatalf("resolve fresh: %v", err)
	}
	if len(set.Permissions) != 2 {
		t.Fatalf("fresh resolution must bypass the cache, got %v", set.Permissions)
	}

	// The fresh result is written through.
	set, err = resolver.Resolve(ctx, userID, "")
	if err != nil {
		t.Fatalf("resolve after fresh: %v", err)
	}
	if len(set.Permissions) != 2 {
		t.Fatalf("expected write-through, got %v", set.Permissions)
	}
}

func TestInvalidateForcesRecomputation(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	viewer := catalog.addRole("viewer", "records:read")
	catalog.assign(userID, viewer, "")
	resolver, _ := resolverWithCache(t, catalog)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, userID, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := resolver.Invalidate(ctx, userID, ""); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := resolver.Resolve(ctx, userID, ""); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if catalog.getIdentityCalls != 2 {
		t.Fatalf("invalidation must force a catalog read, got %d hits", catalog.getIdentityCalls)
	}
}

func TestCheckManyEvaluatesEachRequirement(t *testing.T) {
	catalog := newMockCatalog()
	userID := uuid.New()
	catalog.identities[userID] = &Identity{ID: userID}
	role := catalog.addRole("editor", "records:*")
	catalog.assign(userID, role, "")
	resolver := NewResolver(catalog, nil, testLogger(), nil)

	got, err := resolver.CheckMany(context.Background(), userID, []string{"records:read", "files:upload"}, "")
	if err != nil {
		t.Fatalf("check many: %v", err)
	}
	if !got["records:read"] || got["files:upload"] {
		t.Fatalf("unexpected results: %v", got)
	}
}
