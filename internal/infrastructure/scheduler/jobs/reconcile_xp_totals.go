// Package jobs contains implementations of scheduled jobs for the saga
// progression engine.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
	"github.com/saga-hub/saga-progress-hub/pkg/logger"
	"github.com/saga-hub/saga-progress-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE XP TOTALS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileXPTotalsJob repairs learner XP totals that drifted below the sum
// of their completed chapters. Drift happens when a completion's ledger
// credit fails after the progress write; the sweep raises the total to the
// recomputed floor and never lowers it, so running it is safe at any time
// and as often as wanted.
type ReconcileXPTotalsJob struct {
	progressRepo progression.Repository
	ledger       xp.Ledger
	publisher    shared.EventPublisher
	log          *logger.Logger

	config SweepConfig

	lastStats atomic.Value // *SweepStats
}

// SweepConfig contains configuration for the reconciliation sweep.
type SweepConfig struct {
	// Timeout is the maximum duration for one full sweep.
	Timeout time.Duration

	// PerLearnerRetries is how many attempts the sweep makes per learner
	// before moving on.
	PerLearnerRetries int

	// RetryDelay is the initial backoff between per-learner attempts.
	RetryDelay time.Duration
}

// DefaultSweepConfig returns sensible defaults.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Timeout:           5 * time.Minute,
		PerLearnerRetries: 3,
		RetryDelay:        200 * time.Millisecond,
	}
}

// SweepStats contains statistics from one sweep run.
type SweepStats struct {
	StartedAt       time.Time
	CompletedAt     time.Time
	Duration        time.Duration
	LearnersChecked int
	TotalsRaised    int
	Failures        int
}

// NewReconcileXPTotalsJob creates a new reconciliation sweep job.
func NewReconcileXPTotalsJob(
	progressRepo progression.Repository,
	ledger xp.Ledger,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config SweepConfig,
) *ReconcileXPTotalsJob {
	if log == nil {
		log = logger.Default()
	}
	if config.Timeout <= 0 {
		config = DefaultSweepConfig()
	}
	return &ReconcileXPTotalsJob{
		progressRepo: progressRepo,
		ledger:       ledger,
		publisher:    publisher,
		log:          log.With(logger.Component("xp_sweep")),
		config:       config,
	}
}

// Name implements scheduler.Job.
func (j *ReconcileXPTotalsJob) Name() string {
	return "reconcile_xp_totals"
}

// Description implements scheduler.Job.
func (j *ReconcileXPTotalsJob) Description() string {
	return "Raises learner XP totals that fell behind their completed chapters"
}

// Run implements scheduler.Job.
func (j *ReconcileXPTotalsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &SweepStats{StartedAt: time.Now().UTC()}
	defer func() {
		stats.CompletedAt = time.Now().UTC()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	learners, err := j.progressRepo.LearnersWithCompletions(ctx)
	if err != nil {
		return fmt.Errorf("xp_sweep: listing learners: %w", err)
	}

	for _, learnerID := range learners {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stats.LearnersChecked++
		raised, err := j.sweepLearner(ctx, learnerID)
		if raised {
			stats.TotalsRaised++
		}
		if err != nil {
			stats.Failures++
			j.log.Error("sweep failed for learner",
				logger.LearnerID(learnerID.String()),
				logger.Err(err),
			)
			continue
		}
	}

	// Learners that failed simply wait for the next sweep: SetIfGreater is
	// idempotent and never lowers a total.
	j.log.Info("sweep finished",
		logger.Int("learners_checked", stats.LearnersChecked),
		logger.Int("totals_raised", stats.TotalsRaised),
		logger.Int("failures", stats.Failures),
	)
	if j.publisher != nil {
		_ = j.publisher.Publish(shared.NewXPTotalsRecomputedEvent(stats.LearnersChecked, stats.TotalsRaised))
	}
	return nil
}

// sweepLearner recomputes one learner's floor and raises the stored total if
// it fell behind. Returns whether the total changed.
func (j *ReconcileXPTotalsJob) sweepLearner(ctx context.Context, learnerID catalog.LearnerID) (bool, error) {
	var raised bool
	err := retry.Do(ctx, func(ctx context.Context) error {
		floor, err := j.progressRepo.SumCompletedXP(ctx, learnerID)
		if err != nil {
			return err
		}
		if floor <= 0 {
			return nil
		}

		changed, err := j.ledger.SetIfGreater(ctx, learnerID, floor)
		if err != nil {
			return err
		}
		if changed {
			raised = true
			j.log.Info("raised XP total",
				logger.LearnerID(learnerID.String()),
				logger.XPAmount(floor),
			)
		}
		return nil
	},
		retry.WithMaxAttempts(j.config.PerLearnerRetries),
		retry.WithInitialDelay(j.config.RetryDelay),
		// Storage errors during a sweep are transient until proven otherwise.
		retry.WithRetryIf(func(err error) bool { return !retry.IsPermanent(err) }),
	)
	return raised, err
}

// LastStats returns statistics from the most recent sweep, or nil.
func (j *ReconcileXPTotalsJob) LastStats() *SweepStats {
	stats, _ := j.lastStats.Load().(*SweepStats)
	return stats
}
