package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// Warmer resolves permission sets ahead of traffic so first requests after a
// deploy or mass invalidation do not all fall through to the catalog.
type Warmer struct {
	resolver *rbac.Resolver
	logger   *slog.Logger
}

// NewWarmer constructs a Warmer.
func NewWarmer(resolver *rbac.Resolver, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{resolver: resolver, logger: logger}
}

// HandleWarmCache processes TaskWarmCache tasks.
func (w *Warmer) HandleWarmCache(ctx context.Context, t *asynq.Task) error {
	var payload WarmCachePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	warmed := 0
	for _, userID := range payload.UserIDs {
		if _, err := w.resolver.ResolveFresh(ctx, userID, payload.Scope); err != nil {
			w.logger.Warn("cache warmup",
				slog.String("user_id", userID.String()), slog.Any("error", err))
			continue
		}
		warmed++
	}
	w.logger.Info("permission cache warmed",
		slog.Int("warmed", warmed), slog.Int("requested", len(payload.UserIDs)))
	return nil
}
