// Package rbac implements permission resolution for the platform: catalog
// records (permissions, roles, assignments), a Redis-backed cache of resolved
// permission sets, wildcard-aware checking, and the authorization gate used
// by HTTP handlers.
package rbac

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors surfaced by the rbac package.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrConflict indicates a duplicate record (permission name, role name,
	// or an active assignment for the same user/role/scope triple).
	ErrConflict = errors.New("rbac: conflict")
	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = errors.New("rbac: invalid input")
	// ErrSystemRecord indicates an attempt to mutate or delete a system record.
	ErrSystemRecord = errors.New("rbac: system record is protected")
	// ErrCatalogUnavailable indicates the durable store could not be reached.
	// Retryable; never converted into a denial.
	ErrCatalogUnavailable = errors.New("rbac: catalog unavailable")
	// ErrCacheUnavailable indicates the cache backend could not be reached.
	// The resolver degrades to a catalog fetch on this error.
	ErrCacheUnavailable = errors.New("rbac: cache unavailable")
)

const (
	// WildcardAll grants every action on every resource.
	WildcardAll = "*:*"
	// SuperuserRole is the sentinel role name reported for superusers.
	SuperuserRole = "superuser"
)

// Actions is the fixed action set a wildcard permission expands into.
var Actions = []string{"create", "read", "update", "delete", "list"}

// WildcardResources is the fixed resource list the global wildcard expands
// across.
var WildcardResources = []string{"posts", "records", "files", "users", "permissions", "roles"}

// Permission is an atomic capability, named resource:action.
type Permission struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description,omitempty"`
	ResourceType  string    `json:"resource_type"`
	Action        string    `json:"action"`
	AppIdentifier string    `json:"app_identifier,omitempty"`
	IsSystem      bool      `json:"is_system"`
	CreatedAt     time.Time `json:"created_at"`
}

// Role bundles permissions under a name. ExternalGroup links the role to an
// identity-provider group for sync.
type Role struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	DisplayName   string      `json:"display_name"`
	Description   string      `json:"description,omitempty"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
	AppIdentifier string      `json:"app_identifier,omitempty"`
	ExternalGroup string      `json:"external_group,omitempty"`
	IsSystem      bool        `json:"is_system"`
	IsDefault     bool        `json:"is_default"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// RoleAssignment links a user to a role within an optional scope. At most one
// active assignment may exist per (user, role, scope) triple.
type RoleAssignment struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	RoleID        uuid.UUID  `json:"role_id"`
	AppIdentifier string     `json:"app_identifier,omitempty"`
	AssignedBy    *uuid.UUID `json:"assigned_by,omitempty"`
	AssignedAt    time.Time  `json:"assigned_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
}

// Identity is the minimal view of a user the resolver needs.
type Identity struct {
	ID          uuid.UUID
	IsSuperuser bool
}

// PermissionSet is a fully resolved, wildcard-expanded, deduplicated
// permission list for a user in a given scope. For superusers the permission
// list is the whole catalog and Roles is ["superuser"].
type PermissionSet struct {
	Permissions []string  `json:"permissions"`
	Roles       []string  `json:"roles"`
	CachedAt    time.Time `json:"cached_at"`
	IsSuperuser bool      `json:"is_superuser"`
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() uuid.UUID
	IsSuperUser() bool
}

// Metrics receives authorization and cache observations. Implemented by
// internal/observability; a nil Metrics disables instrumentation.
type Metrics interface {
	AuthzDecision(allowed bool)
	CacheLookup(hit bool)
}
