package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/valuetrack/valuetrack/internal/jobs"
	"github.com/valuetrack/valuetrack/internal/shared"
)

// Invalidator is the resolver cache hook the sweep bumps after retiring rows.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ExpirySweeper deactivates lapsed assignments and revokes lapsed grants.
// Resolution already filters expiry at read time, so the sweep only keeps
// the tables tidy and the counts honest; correctness never waits for it.
type ExpirySweeper struct {
	pool        *pgxpool.Pool
	invalidator Invalidator
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
}

// NewExpirySweeper wires the sweeper.
func NewExpirySweeper(pool *pgxpool.Pool, invalidator Invalidator, metrics *jobmetrics.Metrics, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{pool: pool, invalidator: invalidator, metrics: metrics, logger: logger}
}

// Handle processes TaskRoleExpirySweep tasks.
func (s *ExpirySweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics.Track("expiry_sweep")
	return tracker.End(s.Run(ctx))
}

// Run executes one sweep pass.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	assignments, err := s.pool.Exec(ctx, `
		UPDATE user_role_assignments SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return err
	}
	grants, err := s.pool.Exec(ctx, `
		UPDATE role_permission_grants SET granted = FALSE
		WHERE granted = TRUE AND expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return err
	}
	retiredAssignments := assignments.RowsAffected()
	retiredGrants := grants.RowsAffected()
	s.metrics.AddExpired("assignments", retiredAssignments)
	s.metrics.AddExpired("grants", retiredGrants)
	if retiredAssignments > 0 || retiredGrants > 0 {
		s.logger.Info("expiry sweep retired records",
			slog.Int64("assignments", retiredAssignments),
			slog.Int64("grants", retiredGrants))
		if s.invalidator != nil {
			if err := s.invalidator.Invalidate(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// IdempotencyCleaner prunes processed request keys past their retention.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewIdempotencyCleaner wires the cleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *IdempotencyCleaner {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IdempotencyCleaner{store: store, retention: retention, metrics: metrics, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (c *IdempotencyCleaner) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := c.metrics.Track("idempotency_cleanup")
	return tracker.End(c.store.Cleanup(ctx, c.retention))
}
