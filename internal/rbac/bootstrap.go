package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type seedPermission struct {
	Name        string
	DisplayName string
	Description string
}

type seedRole struct {
	Name        string
	DisplayName string
	Description string
	IsDefault   bool
	Permissions []string // empty means every seeded permission
}

var basePermissions = []seedPermission{
	{"records:create", "Create records", "Create new unified records"},
	{"records:read", "Read records", "Read unified records"},
	{"records:update", "Update records", "Update unified records"},
	{"records:delete", "Delete records", "Delete unified records"},
	{"records:batch", "Batch records", "Run batch operations on unified records"},

	{"files:upload", "Upload files", "Upload new files"},
	{"files:download", "Download files", "Download stored files"},
	{"files:delete", "Delete files", "Delete stored files"},

	{"users:read", "Read users", "View user profiles"},
	{"users:update", "Update users", "Update user profiles"},
	{"users:delete", "Delete users", "Delete users"},

	{"permissions:read", "Read permissions", "View the permission catalog"},
	{"permissions:manage", "Manage permissions", "Create, update and delete permissions"},

	{"roles:read", "Read roles", "View roles"},
	{"roles:create", "Create roles", "Create new roles"},
	{"roles:update", "Update roles", "Update roles"},
	{"roles:delete", "Delete roles", "Delete roles"},

	{"users:roles:read", "Read user roles", "View role assignments"},
	{"users:roles:assign", "Assign roles", "Assign roles to users"},
	{"users:roles:remove", "Remove roles", "Remove roles from users"},
	{"users:permissions:read", "Read user permissions", "View a user's effective permissions"},
}

var baseRoles = []seedRole{
	{
		Name:        SuperuserRole,
		DisplayName: "Superuser",
		Description: "Administrator with every permission",
	},
	{
		Name:        "admin",
		DisplayName: "Administrator",
		Description: "System administrator with most permissions",
		Permissions: []string{
			"records:create", "records:read", "records:update", "records:delete", "records:batch",
			"files:upload", "files:download", "files:delete",
			"users:read", "users:update",
			"permissions:read",
			"roles:read", "roles:update",
			"users:roles:read", "users:roles:assign", "users:roles:remove",
			"users:permissions:read",
		},
	},
	{
		Name:        "user",
		DisplayName: "User",
		Description: "Regular user with basic permissions",
		IsDefault:   true,
		Permissions: []string{"records:read", "files:upload", "files:download"},
	},
	{
		Name:        "guest",
		DisplayName: "Guest",
		Description: "Read-only visitor",
		Permissions: []string{"records:read"},
	},
}

// Bootstrap seeds the base permission catalog and the built-in system roles.
// It is idempotent: records that already exist are left untouched.
func Bootstrap(ctx context.Context, store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	created := 0
	for _, seed := range basePermissions {
		resource, action, _ := strings.Cut(seed.Name, ":")
		_, err := store.CreatePermission(ctx, Permission{
			Name:         seed.Name,
			DisplayName:  seed.DisplayName,
			Description:  seed.Description,
			ResourceType: resource,
			Action:       action,
			IsSystem:     true,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrConflict):
			// already seeded
		default:
			return fmt.Errorf("rbac: bootstrap permission %s: %w", seed.Name, err)
		}
	}
	logger.Info("permission catalog seeded",
		slog.Int("created", created),
		slog.Int("total", len(basePermissions)))

	allNames := make([]string, 0, len(basePermissions))
	for _, seed := range basePermissions {
		allNames = append(allNames, seed.Name)
	}

	for _, seed := range baseRoles {
		role, err := store.CreateRole(ctx, Role{
			Name:        seed.Name,
			DisplayName: seed.DisplayName,
			Description: seed.Description,
			IsSystem:    true,
			IsDefault:   seed.IsDefault,
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("rbac: bootstrap role %s: %w", seed.Name, err)
		}

		names := seed.Permissions
		if len(names) == 0 {
			names = allNames
		}
		if err := grantByName(ctx, store, role, names); err != nil {
			return err
		}
		logger.Info("system role seeded",
			slog.String("role", seed.Name),
			slog.Int("permissions", len(names)))
	}
	return nil
}

func grantByName(ctx context.Context, store Store, role Role, names []string) error {
	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		perm, err := store.GetPermissionByName(ctx, name)
		if err != nil {
			return fmt.Errorf("rbac: bootstrap role %s: permission %s: %w", role.Name, name, err)
		}
		ids = append(ids, perm.ID)
	}
	return store.SetRolePermissions(ctx, role.ID, ids)
}
