package executor

import (
	"context"
	"time"

	"github.com/schedora/engine/internal/core/jobstate"
	coreretry "github.com/schedora/engine/internal/core/retry"
	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/queue/redisqueue"
	"github.com/schedora/engine/internal/store/gormstore"
)

// RetryLayer observes FAILED jobs and decides between RETRYING->SCHEDULED
// and DEAD, per §4.8 step 7 / §9 "retry as an outer layer". Kept
// deliberately separate from Executor so the executor stays concerned
// with exactly one invocation.
type RetryLayer struct {
	jobs      gormstore.JobRepo
	queue     *redisqueue.Queue
	log       *logger.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewRetryLayer constructs a RetryLayer. Queue may be nil. Base/max
// backoff delays are read from RETRY_BASE_DELAY / RETRY_MAX_DELAY
// (durations like "20s"), defaulting to 20s / 24h.
func NewRetryLayer(jobs gormstore.JobRepo, queue *redisqueue.Queue, baseLog *logger.Logger) *RetryLayer {
	return &RetryLayer{
		jobs:      jobs,
		queue:     queue,
		log:       baseLog.With("component", "RetryLayer"),
		baseDelay: envutil.Duration("RETRY_BASE_DELAY", defaultBaseDelay),
		maxDelay:  envutil.Duration("RETRY_MAX_DELAY", defaultMaxDelay),
	}
}

// HandleFailure inspects job (already FAILED) and either schedules the
// next retry or exhausts it to DEAD, moving it to the DLQ when exhausted.
func (r *RetryLayer) HandleFailure(ctx context.Context, job *gormstore.Job) error {
	if job.Status != string(jobstate.Failed) {
		return nil
	}

	if !coreretry.ShouldRetry(job.RetryCount, job.MaxRetries) {
		return r.exhaust(ctx, job)
	}

	delay := coreretry.NextDelay(coreretry.Policy(job.RetryPolicy), job.RetryCount, r.baseDelay, r.maxDelay, nil)
	nextAt := time.Now().UTC().Add(delay)

	if err := jobstate.ValidateTransition(jobstate.Failed, jobstate.Retrying); err != nil {
		return err
	}
	if err := r.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status": string(jobstate.Retrying),
	}); err != nil {
		return err
	}
	if err := jobstate.ValidateTransition(jobstate.Retrying, jobstate.Scheduled); err != nil {
		return err
	}
	if err := r.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status":       string(jobstate.Scheduled),
		"scheduled_at": nextAt,
		"retry_count":  job.RetryCount + 1,
		"worker_id":    nil,
	}); err != nil {
		return err
	}
	job.Status = string(jobstate.Scheduled)
	job.ScheduledAt = nextAt
	job.RetryCount++
	r.log.Info("job scheduled for retry", "job_id", job.ID, "retry_count", job.RetryCount, "next_at", nextAt)
	return nil
}

// exhaust transitions job FAILED->DEAD and, when a queue is wired in,
// then moves it into the DLQ in the same call. The two writes are not
// atomic: a failed DLQ move is logged and the job stays DEAD.
func (r *RetryLayer) exhaust(ctx context.Context, job *gormstore.Job) error {
	if err := jobstate.ValidateTransition(jobstate.Failed, jobstate.Dead); err != nil {
		return err
	}
	if err := r.jobs.UpdateFields(ctx, job.ID, map[string]interface{}{
		"status": string(jobstate.Dead),
	}); err != nil {
		return err
	}
	job.Status = string(jobstate.Dead)
	if r.queue != nil {
		reason := "retries exhausted"
		if job.ErrorMessage != nil {
			reason = *job.ErrorMessage
		}
		if err := r.queue.MoveToDLQ(ctx, job.ID, reason); err != nil {
			r.log.Warn("failed to move exhausted job to DLQ", "job_id", job.ID, "error", err)
		}
	}
	r.log.Warn("job exhausted retries, moved to DEAD", "job_id", job.ID, "max_retries", job.MaxRetries)
	return nil
}

const (
	defaultBaseDelay = 20 * time.Second
	defaultMaxDelay  = 24 * time.Hour
)
