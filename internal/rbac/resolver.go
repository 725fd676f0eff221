package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Resolver computes effective permission sets, consulting the cache first and
// falling back to the catalog. Safe for arbitrary concurrent use; concurrent
// resolutions for the same key are collapsed through singleflight, though
// last-write-wins on the cache entry would be equally correct.
type Resolver struct {
	catalog Catalog
	cache   *Cache
	logger  *slog.Logger
	metrics Metrics
	group   singleflight.Group
}

// NewResolver constructs a Resolver. cache and metrics may be nil.
func NewResolver(catalog Catalog, cache *Cache, logger *slog.Logger, metrics Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, cache: cache, logger: logger, metrics: metrics}
}

// Resolve returns the effective permission set for a user. An empty scope
// considers only global assignments; a concrete scope unions global and
// scoped assignments. Cache failures degrade to a catalog fetch and are
// never surfaced to the caller.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, scope string) (*PermissionSet, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, userID, scope)
		if err != nil {
			r.logger.Warn("permission cache get failed", slog.Any("error", err))
		}
		if r.metrics != nil {
			r.metrics.CacheLookup(cached != nil)
		}
		if cached != nil {
			return cached, nil
		}
	}

	key := userID.String() + "\x00" + scope
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.load(ctx, userID, scope)
	})
	if err != nil {
		return nil, err
	}
	return result.(*PermissionSet), nil
}

// ResolveFresh bypasses the cache read and recomputes from the catalog,
// repopulating the cache. Callers that just mutated assignments use this to
// observe their own writes immediately.
func (r *Resolver) ResolveFresh(ctx context.Context, userID uuid.UUID, scope string) (*PermissionSet, error) {
	return r.load(ctx, userID, scope)
}

// CheckMany resolves once and evaluates each required permission
// independently.
func (r *Resolver) CheckMany(ctx context.Context, userID uuid.UUID, required []string, scope string) (map[string]bool, error) {
	set, err := r.Resolve(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	return CheckEach(set, required), nil
}

// Invalidate drops cached entries for a user. An empty scope clears every
// scope's entry. Cache outages are reported but non-fatal: entries age out
// by TTL regardless.
func (r *Resolver) Invalidate(ctx context.Context, userID uuid.UUID, scope string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Invalidate(ctx, userID, scope); err != nil {
		r.logger.Warn("permission cache invalidation failed",
			slog.String("user_id", userID.String()), slog.Any("error", err))
		return err
	}
	return nil
}

// load computes the permission set from the catalog and writes it through to
// the cache.
func (r *Resolver) load(ctx context.Context, userID uuid.UUID, scope string) (*PermissionSet, error) {
	set, err := r.loadFromCatalog(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Put(ctx, userID, scope, set); err != nil {
			r.logger.Warn("permission cache put failed", slog.Any("error", err))
		}
	}
	return set, nil
}

func (r *Resolver) loadFromCatalog(ctx context.Context, userID uuid.UUID, scope string) (*PermissionSet, error) {
	now := time.Now().UTC()

	ident, err := r.catalog.GetIdentity(ctx, userID)
	if err != nil {
		// An unknown user has no permissions; that is a result, not an error.
		if errors.Is(err, ErrNotFound) {
			return &PermissionSet{Permissions: []string{}, Roles: []string{}, CachedAt: now}, nil
		}
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}

	if ident.IsSuperuser {
		names, err := r.catalog.ListAllPermissionNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", userID, err)
		}
		return &PermissionSet{
			Permissions: normalizeSet(names),
			Roles:       []string{SuperuserRole},
			CachedAt:    now,
			IsSuperuser: true,
		}, nil
	}

	assignments, err := r.catalog.ListActiveAssignments(ctx, userID, scope)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}

	// A role reachable through multiple assignment paths counts once.
	roleIDs := make([]uuid.UUID, 0, len(assignments))
	seenAssignments := make(map[uuid.UUID]struct{}, len(assignments))
	seenRoles := make(map[uuid.UUID]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := seenAssignments[a.ID]; ok {
			continue
		}
		seenAssignments[a.ID] = struct{}{}
		if _, ok := seenRoles[a.RoleID]; ok {
			continue
		}
		seenRoles[a.RoleID] = struct{}{}
		roleIDs = append(roleIDs, a.RoleID)
	}

	if len(roleIDs) == 0 {
		return &PermissionSet{Permissions: []string{}, Roles: []string{}, CachedAt: now}, nil
	}

	roles, err := r.catalog.ListRolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.DisplayName)
	}

	names, err := r.catalog.ListRolePermissionNames(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", userID, err)
	}

	names = append(names, expandWildcards(names)...)

	return &PermissionSet{
		Permissions: normalizeSet(names),
		Roles:       roleNames,
		CachedAt:    now,
	}, nil
}
