// Package worker implements the async worker runtime (C9): polling for
// claims, dispatching to the executor under a bounded-concurrency
// semaphore, and shutting down gracefully.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/schedora/engine/internal/executor"
	"github.com/schedora/engine/internal/heartbeat"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/scheduler"
	"github.com/schedora/engine/internal/store/gormstore"
)

// Counters tracks a worker's lifetime job counts.
type Counters struct {
	Processed int64
	Succeeded int64
	Failed    int64
}

// Worker polls the scheduler for claims and executes them under a
// counting semaphore sized to MaxConcurrentJobs.
type Worker struct {
	id           string
	scheduler    *scheduler.Scheduler
	executor     *executor.Executor
	retry        *executor.RetryLayer
	heartbeat    *heartbeat.Service
	workers      gormstore.WorkerRepo
	log          *logger.Logger
	pollInterval time.Duration
	sem          *semaphore.Weighted

	counters Counters

	wg sync.WaitGroup
}

// Config configures a Worker's concurrency bound and polling cadence.
type Config struct {
	WorkerID          string
	MaxConcurrentJobs int64
	PollInterval      time.Duration
}

// New constructs a Worker. hb may be nil when no side store is
// wired in; assignment-set bookkeeping is then skipped. workers is the
// durable Worker row's repo, used to persist current_job_count and the
// lifetime processed/succeeded/failed_count counters around each dispatch.
func New(cfg Config, sched *scheduler.Scheduler, exec *executor.Executor, retry *executor.RetryLayer, hb *heartbeat.Service, workers gormstore.WorkerRepo, baseLog *logger.Logger) *Worker {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{
		id:           cfg.WorkerID,
		scheduler:    sched,
		executor:     exec,
		retry:        retry,
		heartbeat:    hb,
		workers:      workers,
		log:          baseLog.With("component", "Worker", "worker_id", cfg.WorkerID),
		pollInterval: cfg.PollInterval,
		sem:          semaphore.NewWeighted(cfg.MaxConcurrentJobs),
	}
}

// ID returns the worker's registered identifier.
func (w *Worker) ID() string { return w.id }

// Counters returns a snapshot of the worker's lifetime job counts.
func (w *Worker) Counters() Counters {
	return Counters{
		Processed: atomic.LoadInt64(&w.counters.Processed),
		Succeeded: atomic.LoadInt64(&w.counters.Succeeded),
		Failed:    atomic.LoadInt64(&w.counters.Failed),
	}
}

// Run polls for claims until ctx is canceled, then waits up to
// shutdownTimeout for in-flight executions to finish before returning.
func (w *Worker) Run(ctx context.Context, shutdownTimeout time.Duration) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker loop stopping, draining in-flight executions")
			w.drain(shutdownTimeout)
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	job, err := w.scheduler.Claim(ctx, w.id)
	if err != nil {
		w.log.Warn("claim failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		// Context canceled while waiting for a permit; the row stays
		// SCHEDULED. It was never added to the assignment set, and the
		// stale sweep only reclaims RUNNING jobs from that set.
		return
	}

	w.wg.Add(1)
	go func(job *gormstore.Job) {
		defer w.wg.Done()
		defer w.sem.Release(1)
		w.runOne(ctx, job)
	}(job)
}

func (w *Worker) runOne(ctx context.Context, job *gormstore.Job) {
	if w.heartbeat != nil {
		_ = w.heartbeat.Assign(ctx, w.id, job.ID)
		defer func() { _ = w.heartbeat.Unassign(ctx, w.id, job.ID) }()
	}

	if w.workers != nil {
		if err := w.workers.IncrementCurrentJobCount(ctx, w.id, 1); err != nil {
			w.log.Warn("failed to increment current_job_count", "worker_id", w.id, "error", err)
		}
		defer func() {
			if err := w.workers.IncrementCurrentJobCount(ctx, w.id, -1); err != nil {
				w.log.Warn("failed to decrement current_job_count", "worker_id", w.id, "error", err)
			}
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panicked", "job_id", job.ID, "job_type", job.Type, "panic", r)
		}
	}()

	atomic.AddInt64(&w.counters.Processed, 1)
	w.persistCounters(ctx, 1, 0, 0)

	if err := w.executor.Execute(ctx, job); err != nil {
		w.log.Warn("executor returned an error", "job_id", job.ID, "error", err)
		return
	}

	switch job.Status {
	case "SUCCESS":
		atomic.AddInt64(&w.counters.Succeeded, 1)
		w.persistCounters(ctx, 0, 1, 0)
	case "FAILED":
		atomic.AddInt64(&w.counters.Failed, 1)
		w.persistCounters(ctx, 0, 0, 1)
		if w.retry != nil {
			if err := w.retry.HandleFailure(ctx, job); err != nil {
				w.log.Warn("retry layer failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

// persistCounters writes the given deltas through to the durable Worker
// row. Best-effort: a failure here does not roll back the in-memory
// counters or the job's own outcome, it only means this worker's durable
// bookkeeping lags until the next successful write.
func (w *Worker) persistCounters(ctx context.Context, processed, succeeded, failed int64) {
	if w.workers == nil {
		return
	}
	if err := w.workers.IncrementCounters(ctx, w.id, processed, succeeded, failed); err != nil {
		w.log.Warn("failed to persist worker counters", "worker_id", w.id, "error", err)
	}
}

// drain waits up to timeout for all in-flight runOne goroutines to
// finish; it does not forcibly cancel them (the caller's ctx already
// carries the cancellation that in-flight handlers observe).
func (w *Worker) drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Warn("shutdown grace period elapsed with executions still in flight")
	}
}
