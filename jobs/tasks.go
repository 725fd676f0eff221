// Package jobs runs background maintenance for the permission subsystem on
// an Asynq worker: sweeping expired role assignments and prewarming the
// permission cache.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSweepExpired deactivates role assignments whose expiry has passed.
	TaskSweepExpired = "rbac:sweep_expired"
	// TaskWarmCache resolves permission sets ahead of time so first requests
	// hit the cache.
	TaskWarmCache = "rbac:warm_cache"
)

// SweepExpiredPayload carries scheduling metadata.
type SweepExpiredPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSweepExpiredTask constructs the expiry sweep task.
func NewSweepExpiredTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepExpiredPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSweepExpired, body, asynq.Queue(QueueDefault)), nil
}

// WarmCachePayload names the users and scope to prewarm.
type WarmCachePayload struct {
	UserIDs []uuid.UUID `json:"user_ids"`
	Scope   string      `json:"scope,omitempty"`
}

// NewWarmCacheTask constructs a cache warmup task.
func NewWarmCacheTask(payload WarmCachePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarmCache, body, asynq.Queue(QueueDefault)), nil
}
