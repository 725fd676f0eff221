package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/unifiedbase/unifiedbase/internal/authn"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// GroupSync reconciles provider groups and default roles. Implemented by
// rbac.GroupSyncer.
type GroupSync interface {
	SyncGroups(ctx context.Context, userID uuid.UUID, groups []string, scope string) (rbac.SyncReport, error)
	AssignDefaultRoles(ctx context.Context, userID uuid.UUID, scope string) error
}

// Store is the persistence surface the service depends on. Implemented by
// Repository.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetBySubject(ctx context.Context, subject string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, u *User) error
	List(ctx context.Context, limit, offset int) ([]User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service keeps local user records in step with the identity provider.
type Service struct {
	repo   Store
	groups GroupSync
	logger *slog.Logger
}

// NewService constructs a Service. groups may be nil to disable group sync.
func NewService(repo Store, groups GroupSync, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, groups: groups, logger: logger}
}

// SyncResult reports whether the sync created a new user or refreshed an
// existing one.
type SyncResult struct {
	User    *User
	Created bool
}

// Sync upserts the local record for a verified token. New users receive the
// default roles; provider groups are mirrored into role assignments on every
// login.
func (s *Service) Sync(ctx context.Context, claims *authn.Claims) (SyncResult, error) {
	user, err := s.repo.GetBySubject(ctx, claims.Subject)
	switch {
	case err == nil:
		user.Email = claims.Email
		user.DisplayName = claims.Name
		user.AvatarURL = claims.Avatar
		if err := s.repo.UpdateProfile(ctx, user); err != nil {
			return SyncResult{}, err
		}
		s.syncGroups(ctx, user.ID, claims.Groups)
		return SyncResult{User: user}, nil

	case errors.Is(err, ErrNotFound):
		user = &User{
			Subject:     claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.Name,
			AvatarURL:   claims.Avatar,
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return SyncResult{}, err
		}
		s.logger.Info("user provisioned",
			slog.String("user_id", user.ID.String()),
			slog.String("subject", user.Subject))
		if s.groups != nil {
			if err := s.groups.AssignDefaultRoles(ctx, user.ID, ""); err != nil {
				s.logger.Warn("default role assignment", slog.Any("error", err))
			}
		}
		s.syncGroups(ctx, user.ID, claims.Groups)
		return SyncResult{User: user, Created: true}, nil

	default:
		return SyncResult{}, err
	}
}

func (s *Service) syncGroups(ctx context.Context, userID uuid.UUID, groups []string) {
	if s.groups == nil || len(groups) == 0 {
		return
	}
	report, err := s.groups.SyncGroups(ctx, userID, groups, "")
	if err != nil {
		s.logger.Warn("group sync", slog.String("user_id", userID.String()), slog.Any("error", err))
		return
	}
	if report.RolesCreated > 0 || report.AssignmentsCreated > 0 {
		s.logger.Info("group sync applied",
			slog.String("user_id", userID.String()),
			slog.Int("roles_created", report.RolesCreated),
			slog.Int("assignments_created", report.AssignmentsCreated))
	}
}

// SyncFromClaims implements authn.IdentitySyncer.
func (s *Service) SyncFromClaims(ctx context.Context, claims *authn.Claims) (rbac.Principal, error) {
	result, err := s.Sync(ctx, claims)
	if err != nil {
		return nil, err
	}
	return result.User, nil
}

// Exists implements rbac.UserLookup.
func (s *Service) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, limit, offset int) ([]User, error) {
	return s.repo.List(ctx, limit, offset)
}
