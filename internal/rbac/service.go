package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserLookup verifies that a user exists before roles are assigned to it.
type UserLookup interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service orchestrates catalog administration: permission and role CRUD with
// system-record protection, and role assignment with cache invalidation.
type Service struct {
	store    Store
	resolver *Resolver
	users    UserLookup
	logger   *slog.Logger
}

// NewService constructs a Service. users may be nil when assignment targets
// are validated elsewhere.
func NewService(store Store, resolver *Resolver, users UserLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, users: users, logger: logger}
}

// PermissionInput carries the caller-supplied fields of a new permission.
type PermissionInput struct {
	Name          string
	DisplayName   string
	Description   string
	ResourceType  string
	Action        string
	AppIdentifier string
}

func (in PermissionInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: permission name required", ErrInvalidInput)
	}
	if strings.Count(name, ":") == 0 {
		return fmt.Errorf("%w: permission name %q must be resource:action", ErrInvalidInput, name)
	}
	return nil
}

// CreatePermission inserts a non-system permission. Duplicate names surface
// as ErrConflict.
func (s *Service) CreatePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	if err := in.validate(); err != nil {
		return Permission{}, err
	}
	return s.store.CreatePermission(ctx, Permission{
		Name:          strings.TrimSpace(in.Name),
		DisplayName:   strings.TrimSpace(in.DisplayName),
		Description:   strings.TrimSpace(in.Description),
		ResourceType:  in.ResourceType,
		Action:        in.Action,
		AppIdentifier: in.AppIdentifier,
	})
}

// BulkCreatePermissions inserts the given permissions, skipping names that
// already exist.
func (s *Service) BulkCreatePermissions(ctx context.Context, inputs []PermissionInput) ([]Permission, error) {
	created := make([]Permission, 0, len(inputs))
	for _, in := range inputs {
		perm, err := s.CreatePermission(ctx, in)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, err
		}
		created = append(created, perm)
	}
	return created, nil
}

// ListPermissions returns permissions matching the filter.
func (s *Service) ListPermissions(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	return s.store.ListPermissions(ctx, filter)
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	return s.store.GetPermission(ctx, id)
}

// UpdatePermission changes display metadata. System permissions are
// immutable.
func (s *Service) UpdatePermission(ctx context.Context, id uuid.UUID, update PermissionUpdate) (Permission, error) {
	existing, err := s.store.GetPermission(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	if existing.IsSystem {
		return Permission{}, fmt.Errorf("%w: permission %s", ErrSystemRecord, existing.Name)
	}
	return s.store.UpdatePermission(ctx, id, update)
}

// DeletePermission removes a permission. System permissions cannot be
// deleted.
func (s *Service) DeletePermission(ctx context.Context, id uuid.UUID) error {
	existing, err := s.store.GetPermission(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return fmt.Errorf("%w: permission %s", ErrSystemRecord, existing.Name)
	}
	return s.store.DeletePermission(ctx, id)
}

// RoleInput carries the caller-supplied fields of a new role.
type RoleInput struct {
	Name          string
	DisplayName   string
	Description   string
	PermissionIDs []uuid.UUID
	AppIdentifier string
	ExternalGroup string
	IsDefault     bool
}

// CreateRole inserts a non-system role.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, Role{
		Name:          name,
		DisplayName:   strings.TrimSpace(in.DisplayName),
		Description:   strings.TrimSpace(in.Description),
		PermissionIDs: in.PermissionIDs,
		AppIdentifier: in.AppIdentifier,
		ExternalGroup: in.ExternalGroup,
		IsDefault:     in.IsDefault,
	})
}

// BulkCreateRoles inserts the given roles, skipping names that already exist.
func (s *Service) BulkCreateRoles(ctx context.Context, inputs []RoleInput) ([]Role, error) {
	created := make([]Role, 0, len(inputs))
	for _, in := range inputs {
		role, err := s.CreateRole(ctx, in)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, err
		}
		created = append(created, role)
	}
	return created, nil
}

// ListRoles returns roles matching the filter.
func (s *Service) ListRoles(ctx context.Context, filter RoleFilter) ([]Role, error) {
	return s.store.ListRoles(ctx, filter)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// UpdateRole applies the update. For system roles only display metadata, the
// permission set and the default flag are mutable; the name is not.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, update RoleUpdate) (Role, error) {
	existing, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSystem {
		update.Name = nil
	}
	return s.store.UpdateRole(ctx, id, update)
}

// DeleteRole removes a role and its assignments. System roles cannot be
// deleted. Users holding the role lose it on their next resolution; their
// cache entries age out by TTL.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	existing, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystem {
		return fmt.Errorf("%w: role %s", ErrSystemRecord, existing.Name)
	}
	return s.store.DeleteRole(ctx, id)
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) (Role, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return Role{}, err
	}
	if err := s.store.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return Role{}, err
	}
	return s.store.GetRole(ctx, roleID)
}

// AssignRoleInput describes a role grant.
type AssignRoleInput struct {
	UserID        uuid.UUID
	RoleID        uuid.UUID
	AppIdentifier string
	AssignedBy    *uuid.UUID
	ExpiresAt     *time.Time
}

// AssignRole grants a role to a user. The catalog enforces uniqueness of the
// active (user, role, scope) triple; duplicates surface as ErrConflict. The
// mutation is followed by cache invalidation: for a global grant every scope's
// entry is cleared, for a scoped grant only that scope's entry.
func (s *Service) AssignRole(ctx context.Context, in AssignRoleInput) (RoleAssignment, error) {
	if s.users != nil {
		ok, err := s.users.Exists(ctx, in.UserID)
		if err != nil {
			return RoleAssignment{}, err
		}
		if !ok {
			return RoleAssignment{}, fmt.Errorf("%w: user %s", ErrNotFound, in.UserID)
		}
	}
	if _, err := s.store.GetRole(ctx, in.RoleID); err != nil {
		return RoleAssignment{}, err
	}

	assignment, err := s.store.CreateAssignment(ctx, RoleAssignment{
		UserID:        in.UserID,
		RoleID:        in.RoleID,
		AppIdentifier: in.AppIdentifier,
		AssignedBy:    in.AssignedBy,
		ExpiresAt:     in.ExpiresAt,
	})
	if err != nil {
		return RoleAssignment{}, err
	}

	s.invalidate(ctx, in.UserID, in.AppIdentifier)
	return assignment, nil
}

// RemoveRole revokes a role from a user in the given scope, then invalidates
// the affected cache entries.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID, scope string) error {
	if err := s.store.DeleteAssignment(ctx, userID, roleID, scope); err != nil {
		return err
	}
	s.invalidate(ctx, userID, scope)
	return nil
}

// ListUserRoleIDs returns the distinct role IDs actively assigned to a user.
func (s *Service) ListUserRoleIDs(ctx context.Context, userID uuid.UUID, scope string) ([]uuid.UUID, error) {
	assignments, err := s.store.ListAssignments(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(assignments))
	ids := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.RoleID]; ok {
			continue
		}
		seen[a.RoleID] = struct{}{}
		ids = append(ids, a.RoleID)
	}
	return ids, nil
}

// ListUserRoles returns the roles actively assigned to a user, with their
// permission sets attached.
func (s *Service) ListUserRoles(ctx context.Context, userID uuid.UUID, scope string) ([]Role, error) {
	ids, err := s.ListUserRoleIDs(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	return s.store.ListRolesByIDs(ctx, ids)
}

// invalidate drops cache entries after a catalog mutation. Failures are
// logged and swallowed: entries age out by TTL, and the mutating caller can
// force a fresh resolution.
func (s *Service) invalidate(ctx context.Context, userID uuid.UUID, scope string) {
	if s.resolver == nil {
		return
	}
	if err := s.resolver.Invalidate(ctx, userID, scope); err != nil {
		s.logger.Warn("invalidate after mutation", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
}
