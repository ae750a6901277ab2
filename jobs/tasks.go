package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleExpirySweep retires lapsed assignments and grants.
	TaskRoleExpirySweep = "rbac:expiry_sweep"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NewRoleExpirySweepTask constructs the sweep task. The sweep takes no
// payload; it always covers everything currently lapsed.
func NewRoleExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskRoleExpirySweep, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
