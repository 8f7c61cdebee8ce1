// Package scheduler implements the scheduler/claimer (C6): atomically
// handing ready jobs to workers, either via the durable store's
// skip-locked scan or, when a priority queue is wired in, via a
// pop-then-optimistic-claim path.
package scheduler

import (
	"context"

	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/queue/redisqueue"
	"github.com/schedora/engine/internal/store/gormstore"
)

// Scheduler hands PENDING, due, dependency-satisfied jobs to callers.
// Queue may be nil, in which case every claim goes through the durable
// store's locked scan (the DB-only polling mode from SPEC_FULL.md §9).
type Scheduler struct {
	jobs  gormstore.JobRepo
	queue *redisqueue.Queue
	log   *logger.Logger
}

// New constructs a Scheduler. Pass a nil queue to force DB-only polling.
func New(jobs gormstore.JobRepo, queue *redisqueue.Queue, baseLog *logger.Logger) *Scheduler {
	return &Scheduler{jobs: jobs, queue: queue, log: baseLog.With("component", "Scheduler")}
}

// Claim returns one job claimed on behalf of workerID, or nil if none is
// ready. When a queue is wired in, it is tried first; a queue entry
// whose durable status is no longer claimable is silently discarded and
// the caller falls back to the locked scan for this call.
func (s *Scheduler) Claim(ctx context.Context, workerID string) (*gormstore.Job, error) {
	if s.queue != nil {
		job, err := s.claimFromQueue(ctx, workerID)
		if err != nil {
			s.log.Warn("queue claim path failed, falling back to locked scan", "error", err)
		} else if job != nil {
			return job, nil
		}
	}
	return s.jobs.ClaimNext(ctx, workerID)
}

// ClaimBatch returns up to limit jobs claimed via the locked scan. The
// queue path only ever yields one job per pop so batch claims always use
// the durable store directly.
func (s *Scheduler) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*gormstore.Job, error) {
	return s.jobs.ClaimBatch(ctx, workerID, limit)
}

// claimFromQueue pops the highest-priority job id and attempts the
// optimistic PENDING->SCHEDULED claim. A pop whose row is no longer
// PENDING (already claimed by another worker, canceled, etc.) is
// discarded without mutating the row, per the queue/store-coherence law.
func (s *Scheduler) claimFromQueue(ctx context.Context, workerID string) (*gormstore.Job, error) {
	id, ok, err := s.queue.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	job, claimed, err := s.jobs.ClaimPendingByID(ctx, id, workerID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.log.Info("discarding stale queue entry", "job_id", id)
		return nil, nil
	}
	return job, nil
}

// Enqueue pushes a newly-created job onto the priority queue, when one is
// wired in. No-op when Queue is nil.
func (s *Scheduler) Enqueue(ctx context.Context, job *gormstore.Job) error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Enqueue(ctx, job.ID, job.Priority)
}
