package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// SweepStore is the slice of the catalog the sweep needs.
type SweepStore interface {
	DeactivateExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// Sweeper deactivates expired role assignments and clears the cache entries
// of every affected user. Expiry is already enforced at resolution time; the
// sweep keeps the assignment table honest and trims stale cache entries
// early instead of waiting for the TTL.
type Sweeper struct {
	store    SweepStore
	resolver *rbac.Resolver
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(store SweepStore, resolver *rbac.Resolver, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, resolver: resolver, logger: logger}
}

// HandleSweepExpired processes TaskSweepExpired tasks.
func (s *Sweeper) HandleSweepExpired(ctx context.Context, t *asynq.Task) error {
	var payload SweepExpiredPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	userIDs, err := s.store.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		if err := s.resolver.Invalidate(ctx, userID, ""); err != nil {
			// Entries age out by TTL, so a cache failure does not fail the sweep.
			s.logger.Warn("sweep invalidation",
				slog.String("user_id", userID.String()), slog.Any("error", err))
		}
	}
	if len(userIDs) > 0 {
		s.logger.Info("expired assignments swept", slog.Int("users", len(userIDs)))
	}
	return nil
}
