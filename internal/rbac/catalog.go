package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Catalog is the resolver's view of the durable store. Implementations map
// missing records to ErrNotFound and connectivity failures to
// ErrCatalogUnavailable.
type Catalog interface {
	// GetIdentity fetches the identity record for a user.
	GetIdentity(ctx context.Context, userID uuid.UUID) (*Identity, error)
	// ListActiveAssignments returns the user's active, unexpired assignments
	// for the global scope unioned with the given scope. An empty scope
	// limits the result to global assignments.
	ListActiveAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]RoleAssignment, error)
	// ListRolesByIDs fetches roles for the given IDs, without permission sets.
	ListRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error)
	// ListRolePermissionNames returns the distinct permission names granted
	// by any of the given roles.
	ListRolePermissionNames(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
	// ListAllPermissionNames returns every permission name in the catalog.
	ListAllPermissionNames(ctx context.Context) ([]string, error)
}

// PermissionFilter narrows permission listings.
type PermissionFilter struct {
	AppIdentifier string
	ResourceType  string
	IsSystem      *bool
}

// RoleFilter narrows role listings.
type RoleFilter struct {
	AppIdentifier string
	IsSystem      *bool
	IsDefault     *bool
}

// PermissionUpdate carries the mutable display metadata of a permission.
type PermissionUpdate struct {
	DisplayName *string
	Description *string
}

// RoleUpdate carries the mutable fields of a role. For system roles only
// DisplayName, Description, PermissionIDs and IsDefault are applied.
type RoleUpdate struct {
	Name          *string
	DisplayName   *string
	Description   *string
	PermissionIDs []uuid.UUID
	IsDefault     *bool
}

// Store is the full persistence surface consumed by the admin service, group
// sync and the expiry sweep, on top of the resolver's Catalog view.
type Store interface {
	Catalog

	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error)
	GetPermission(ctx context.Context, id uuid.UUID) (Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, update PermissionUpdate) (Permission, error)
	DeletePermission(ctx context.Context, id uuid.UUID) error

	CreateRole(ctx context.Context, r Role) (Role, error)
	ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleByExternalGroup(ctx context.Context, group, scope string) (Role, error)
	GetDefaultRoles(ctx context.Context, scope string) ([]Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, update RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error

	CreateAssignment(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	DeleteAssignment(ctx context.Context, userID, roleID uuid.UUID, scope string) error
	ListAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]RoleAssignment, error)
	// DeactivateExpired clears the active flag on assignments whose expiry has
	// passed and returns the affected user IDs so their caches can be cleared.
	DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
