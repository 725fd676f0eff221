package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RoleOutcome distinguishes a role created by sync from one that already
// existed.
type RoleOutcome struct {
	Role    Role
	Created bool
}

// AssignmentOutcome distinguishes a new grant from an existing one.
type AssignmentOutcome struct {
	Assignment RoleAssignment
	Created    bool
}

// SyncReport summarises one group synchronisation run.
type SyncReport struct {
	Groups             []string `json:"groups"`
	RolesCreated       int      `json:"roles_created"`
	AssignmentsCreated int      `json:"assignments_created"`
}

// GroupSyncer mirrors identity-provider group membership into local roles
// and assignments. Groups map to roles via the role's external-group link;
// missing roles are created on the fly.
type GroupSyncer struct {
	store    Store
	resolver *Resolver
	logger   *slog.Logger
}

// NewGroupSyncer constructs a GroupSyncer.
func NewGroupSyncer(store Store, resolver *Resolver, logger *slog.Logger) *GroupSyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupSyncer{store: store, resolver: resolver, logger: logger}
}

var groupTitle = cases.Title(language.English)

// SyncGroups reconciles the user's provider groups with local assignments
// and invalidates the permission cache when anything changed.
func (s *GroupSyncer) SyncGroups(ctx context.Context, userID uuid.UUID, groups []string, scope string) (SyncReport, error) {
	report := SyncReport{Groups: groups}

	for _, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		role, err := s.ensureRole(ctx, group, scope)
		if err != nil {
			return report, err
		}
		if role.Created {
			report.RolesCreated++
		}
		assignment, err := s.ensureAssignment(ctx, userID, role.Role.ID, scope)
		if err != nil {
			return report, err
		}
		if assignment.Created {
			report.AssignmentsCreated++
		}
	}

	if report.RolesCreated > 0 || report.AssignmentsCreated > 0 {
		if err := s.resolver.Invalidate(ctx, userID, scope); err != nil {
			s.logger.Warn("group sync cache invalidation", slog.Any("error", err))
		}
	}
	return report, nil
}

// AssignDefaultRoles grants every default role to a newly created user.
func (s *GroupSyncer) AssignDefaultRoles(ctx context.Context, userID uuid.UUID, scope string) error {
	roles, err := s.store.GetDefaultRoles(ctx, scope)
	if err != nil {
		return fmt.Errorf("rbac: default roles: %w", err)
	}
	granted := 0
	for _, role := range roles {
		outcome, err := s.ensureAssignment(ctx, userID, role.ID, scopeOf(role))
		if err != nil {
			return err
		}
		if outcome.Created {
			granted++
		}
	}
	if granted > 0 {
		if err := s.resolver.Invalidate(ctx, userID, ""); err != nil {
			s.logger.Warn("default role cache invalidation", slog.Any("error", err))
		}
	}
	return nil
}

func scopeOf(r Role) string {
	return r.AppIdentifier
}

func (s *GroupSyncer) ensureRole(ctx context.Context, group, scope string) (RoleOutcome, error) {
	existing, err := s.store.GetRoleByExternalGroup(ctx, group, scope)
	if err == nil {
		return RoleOutcome{Role: existing}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return RoleOutcome{}, err
	}

	created, err := s.store.CreateRole(ctx, Role{
		Name:          group,
		DisplayName:   groupTitle.String(strings.ReplaceAll(group, "_", " ")),
		Description:   fmt.Sprintf("Role synced from identity provider group: %s", group),
		AppIdentifier: scope,
		ExternalGroup: group,
	})
	if err != nil {
		// Lost a race with a concurrent sync; re-read the winner.
		if errors.Is(err, ErrConflict) {
			existing, getErr := s.store.GetRoleByExternalGroup(ctx, group, scope)
			if getErr == nil {
				return RoleOutcome{Role: existing}, nil
			}
		}
		return RoleOutcome{}, err
	}
	return RoleOutcome{Role: created, Created: true}, nil
}

func (s *GroupSyncer) ensureAssignment(ctx context.Context, userID, roleID uuid.UUID, scope string) (AssignmentOutcome, error) {
	assignment, err := s.store.CreateAssignment(ctx, RoleAssignment{
		UserID:        userID,
		RoleID:        roleID,
		AppIdentifier: scope,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return AssignmentOutcome{}, nil
		}
		return AssignmentOutcome{}, err
	}
	return AssignmentOutcome{Assignment: assignment, Created: true}, nil
}
