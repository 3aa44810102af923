// Package scheduler runs the periodic dispatch jobs under a distributed lock
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/sos-dispatch-api/api"
	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/dispatch"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

const (
	purgeJob       = "purge_location_history_job"
	retryAssignJob = "retry_assign_job"

	purgeTimeout = 5 * time.Minute
)

// Assigner retries assignment of cases still waiting for an officer
type Assigner interface {
	RetryUnassigned(ctx context.Context, limit int) ([]dispatch.AssignResult, error)
}

// Purger drops location history past its retention
type Purger interface {
	PurgeStaleHistory(ctx context.Context, retentionDays int) (int64, error)
}

// Publisher receives status log rows committed by a job
type Publisher interface {
	Publish(entries ...models.StatusLogEntry) int
}

// Scheduler handles periodic background jobs for dispatch
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.Dispatch
	Assigner   Assigner
	Purger     Purger
	LockDB     databases.SchedulerLockDatabase
	Hub        Publisher
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg config.Dispatch, assigner Assigner, purger Purger, lockDB databases.SchedulerLockDatabase, hub Publisher) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		cfg:        cfg,
		Assigner:   assigner,
		Purger:     purger,
		LockDB:     lockDB,
		Hub:        hub,
		instanceID: instanceID,
	}
}

// Start registers the jobs and begins the scheduler. A malformed schedule is
// returned before anything runs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.PurgeSchedule, s.purgeLocationHistory); err != nil {
		return fmt.Errorf("failed to register location purge job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RetryAssignSchedule, s.retryAssign); err != nil {
		return fmt.Errorf("failed to register retry assignment job: %w", err)
	}

	s.cron.Start()
	zap.S().Infow("Dispatch scheduler started",
		"instance", s.instanceID,
		"purgeSchedule", s.cfg.PurgeSchedule,
		"retryAssignSchedule", s.cfg.RetryAssignSchedule,
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Dispatch scheduler stopped")
}

// withLock runs job only when this instance holds the named lock
func (s *Scheduler) withLock(ctx context.Context, name string, ttl time.Duration, job func(ctx context.Context)) bool {
	acquired, err := s.LockDB.TryAcquireLock(ctx, name, s.instanceID, ttl)
	if err != nil {
		zap.S().Errorw("failed to acquire lock", "job", name, "error", err)
		return false
	}
	if !acquired {
		zap.S().Debugw("job already running on another instance, skipping", "job", name)
		return false
	}
	defer func() {
		// release with a fresh context, the job's may already be done
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.LockDB.ReleaseLock(releaseCtx, name, s.instanceID); err != nil {
			zap.S().Warnw("failed to release lock", "job", name, "error", err)
		}
	}()

	job(ctx)
	return true
}

// purgeLocationHistory deletes location rows not tied to a case that are
// older than the retention window
func (s *Scheduler) purgeLocationHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	s.withLock(ctx, purgeJob, 2*purgeTimeout, func(ctx context.Context) {
		deleted, err := s.Purger.PurgeStaleHistory(ctx, s.cfg.LocationHistoryRetentionDays)
		if err != nil {
			zap.S().Errorw("failed to purge location history", "error", err)
			return
		}
		zap.S().Infow("Location history purge complete",
			"instance", s.instanceID,
			"deleted", deleted,
			"retentionDays", s.cfg.LocationHistoryRetentionDays,
		)
	})
}

// retryAssign runs auto-assignment again for the oldest unassigned cases and
// publishes the resulting status changes
func (s *Scheduler) retryAssign() {
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()

	s.withLock(ctx, retryAssignJob, 2*api.QueryTimeout, func(ctx context.Context) {
		results, err := s.Assigner.RetryUnassigned(ctx, dispatch.DefaultRetryBatch)
		if err != nil {
			zap.S().Errorw("failed to retry assignments", "error", err)
		}

		assigned := 0
		for _, res := range results {
			if res.Log != nil {
				s.Hub.Publish(*res.Log)
				assigned++
			}
		}
		if len(results) > 0 {
			zap.S().Infow("Retry assignment complete", "attempted", len(results), "assigned", assigned)
		}
	})
}
