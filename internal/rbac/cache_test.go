package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	set := &PermissionSet{
		Permissions: []string{"posts:read", "posts:write"},
		Roles:       []string{"Editor"},
		CachedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := cache.Put(ctx, userID, "", set); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get(ctx, userID, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a cached entry")
	}
	if len(got.Permissions) != 2 || got.Permissions[0] != "posts:read" {
		t.Fatalf("unexpected permissions: %v", got.Permissions)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "Editor" {
		t.Fatalf("unexpected roles: %v", got.Roles)
	}
}

func TestCacheMissReturnsNilNil(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	got, err := cache.Get(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("miss must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil on miss, got %v", got)
	}
}

func TestCacheScopedKeysAreIsolated(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	global := &PermissionSet{Permissions: []string{"posts:read"}}
	scoped := &PermissionSet{Permissions: []string{"posts:read", "forum:moderate"}}
	if err := cache.Put(ctx, userID, "", global); err != nil {
		t.Fatalf("put global: %v", err)
	}
	if err := cache.Put(ctx, userID, "forum-app", scoped); err != nil {
		t.Fatalf("put scoped: %v", err)
	}

	gotGlobal, err := cache.Get(ctx, userID, "")
	if err != nil || gotGlobal == nil {
		t.Fatalf("get global: %v %v", gotGlobal, err)
	}
	if len(gotGlobal.Permissions) != 1 {
		t.Fatalf("global entry must not see scoped permissions: %v", gotGlobal.Permissions)
	}

	gotScoped, err := cache.Get(ctx, userID, "forum-app")
	if err != nil || gotScoped == nil {
		t.Fatalf("get scoped: %v %v", gotScoped, err)
	}
	if len(gotScoped.Permissions) != 2 {
		t.Fatalf("unexpected scoped permissions: %v", gotScoped.Permissions)
	}
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	if err := cache.Put(ctx, userID, "", &PermissionSet{Permissions: []string{"posts:read"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, userID, "")
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired entry to read as miss")
	}
}

func TestCacheInvalidateScopedRemovesOnlyThatScope(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	if err := cache.Put(ctx, userID, "", &PermissionSet{Permissions: []string{"a:b"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.Put(ctx, userID, "blog-app", &PermissionSet{Permissions: []string{"a:b"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := cache.Invalidate(ctx, userID, "blog-app"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if got, _ := cache.Get(ctx, userID, "blog-app"); got != nil {
		t.Fatalf("scoped entry should be gone")
	}
	if got, _ := cache.Get(ctx, userID, ""); got == nil {
		t.Fatalf("global entry should survive a scoped invalidation")
	}
}

func TestCacheInvalidateGlobalRemovesAllUserEntries(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()

	for _, scope := range []string{"", "blog-app", "forum-app"} {
		if err := cache.Put(ctx, userID, scope, &PermissionSet{Permissions: []string{"a:b"}}); err != nil {
			t.Fatalf("put %q: %v", scope, err)
		}
	}
	if err := cache.Put(ctx, other, "blog-app", &PermissionSet{Permissions: []string{"a:b"}}); err != nil {
		t.Fatalf("put other: %v", err)
	}

	if err := cache.Invalidate(ctx, userID, ""); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	for _, scope := range []string{"", "blog-app", "forum-app"} {
		if got, _ := cache.Get(ctx, userID, scope); got != nil {
			t.Fatalf("entry for scope %q should be gone", scope)
		}
	}
	if got, _ := cache.Get(ctx, other, "blog-app"); got == nil {
		t.Fatalf("other user's entry must survive")
	}
}

func TestCacheBackendDownWrapsErrCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	mr.Close()

	if _, err := cache.Get(ctx, userID, ""); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable from get, got %v", err)
	}
	if err := cache.Put(ctx, userID, "", &PermissionSet{}); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable from put, got %v", err)
	}
	if err := cache.Invalidate(ctx, userID, ""); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("expected ErrCacheUnavailable from invalidate, got %v", err)
	}
}

func TestCacheCorruptEntryReadsAsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	if err := mr.Set(cache.Key(userID, ""), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	got, err := cache.Get(ctx, userID, "")
	if err != nil {
		t.Fatalf("corrupt entry must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("corrupt entry must read as miss")
	}
}
