package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

type stubCatalog struct{}

func (stubCatalog) GetIdentity(ctx context.Context, userID uuid.UUID) (*rbac.Identity, error) {
	return &rbac.Identity{ID: userID}, nil
}

func (stubCatalog) ListActiveAssignments(ctx context.Context, userID uuid.UUID, scope string) ([]rbac.RoleAssignment, error) {
	return nil, nil
}

func (stubCatalog) ListRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]rbac.Role, error) {
	return nil, nil
}

func (stubCatalog) ListRolePermissionNames(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	return nil, nil
}

func (stubCatalog) ListAllPermissionNames(ctx context.Context) ([]string, error) {
	return nil, nil
}

type stubSweepStore struct {
	expired []uuid.UUID
	err     error
	calls   int
}

func (s *stubSweepStore) DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	s.calls++
	return s.expired, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJobTestCache(t *testing.T) *rbac.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return rbac.NewCache(client, time.Hour)
}

func TestHandleSweepExpiredInvalidatesAffectedUsers(t *testing.T) {
	cache := newJobTestCache(t)
	resolver := rbac.NewResolver(stubCatalog{}, cache, discardLogger(), nil)
	ctx := context.Background()

	expired := uuid.New()
	untouched := uuid.New()
	for _, id := range []uuid.UUID{expired, untouched} {
		if err := cache.Put(ctx, id, "", &rbac.PermissionSet{Permissions: []string{"records:read"}}); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	store := &stubSweepStore{expired: []uuid.UUID{expired}}
	sweeper := NewSweeper(store, resolver, discardLogger())

	task, err := NewSweepExpiredTask(time.Now().UTC())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := sweeper.HandleSweepExpired(ctx, task); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if store.calls != 1 {
		t.Fatalf("expected one deactivation pass, got %d", store.calls)
	}
	if set, _ := cache.Get(ctx, expired, ""); set != nil {
		t.Fatalf("expired user's cache entry must be cleared")
	}
	if set, _ := cache.Get(ctx, untouched, ""); set == nil {
		t.Fatalf("unaffected user's cache entry must survive")
	}
}

func TestHandleSweepExpiredPropagatesStoreErrors(t *testing.T) {
	resolver := rbac.NewResolver(stubCatalog{}, nil, discardLogger(), nil)
	store := &stubSweepStore{err: rbac.ErrCatalogUnavailable}
	sweeper := NewSweeper(store, resolver, discardLogger())

	task, err := NewSweepExpiredTask(time.Now().UTC())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := sweeper.HandleSweepExpired(context.Background(), task); !errors.Is(err, rbac.ErrCatalogUnavailable) {
		t.Fatalf("expected the store error to propagate for retry, got %v", err)
	}
}

func TestHandleSweepExpiredBadPayloadSkipsRetry(t *testing.T) {
	resolver := rbac.NewResolver(stubCatalog{}, nil, discardLogger(), nil)
	sweeper := NewSweeper(&stubSweepStore{}, resolver, discardLogger())

	task := asynq.NewTask(TaskSweepExpired, []byte("{broken"))
	if err := sweeper.HandleSweepExpired(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
