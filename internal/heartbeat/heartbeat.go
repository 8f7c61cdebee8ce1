// Package heartbeat implements the heartbeat service (C10): worker
// registration/deregistration, the dual fast-expiry-marker/durable-
// timestamp heartbeat, stale detection, and reclaim of a stale worker's
// in-flight jobs.
package heartbeat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/schedora/engine/internal/core/jobstate"
	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/store/gormstore"
)

// Service implements worker registration, heartbeats, and stale reclaim.
// client may be nil when no side store is wired in; the fast-expiry
// marker and assignment set are then skipped and stale detection falls
// back entirely to the durable last_heartbeat_at timestamp.
type Service struct {
	workers gormstore.WorkerRepo
	jobs    gormstore.JobRepo
	client  *redis.Client
	log     *logger.Logger

	heartbeatTimeout time.Duration
}

// New constructs a Service. WORKER_HEARTBEAT_TIMEOUT (default 90s) sizes
// the fast-expiry marker's TTL.
func New(workers gormstore.WorkerRepo, jobs gormstore.JobRepo, client *redis.Client, baseLog *logger.Logger) *Service {
	return &Service{
		workers:          workers,
		jobs:             jobs,
		client:           client,
		log:              baseLog.With("component", "HeartbeatService"),
		heartbeatTimeout: envutil.Duration("WORKER_HEARTBEAT_TIMEOUT", 90*time.Second),
	}
}

func markerKey(workerID string) string { return "worker:" + workerID + ":heartbeat" }
func jobsKey(workerID string) string   { return "worker:" + workerID + ":jobs" }

// Register creates the durable worker row (ACTIVE, started_at=now) and
// installs the fast-expiry marker.
func (s *Service) Register(ctx context.Context, w *gormstore.Worker) error {
	now := time.Now().UTC()
	w.Status = "ACTIVE"
	w.StartedAt = &now
	if err := s.workers.Register(ctx, w); err != nil {
		return err
	}
	return s.setMarker(ctx, w.WorkerID)
}

// Heartbeat refreshes the fast-expiry marker and the durable timestamp
// (plus optional cpu/mem samples).
func (s *Service) Heartbeat(ctx context.Context, workerID string, cpuPercent, memPercent *float64) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"last_heartbeat_at": now}
	if cpuPercent != nil {
		updates["cpu_percent"] = *cpuPercent
	}
	if memPercent != nil {
		updates["mem_percent"] = *memPercent
	}
	if err := s.workers.UpdateFields(ctx, workerID, updates); err != nil {
		return err
	}
	return s.setMarker(ctx, workerID)
}

// Deregister removes the marker, clears the assignment set, and marks
// the worker STOPPED.
func (s *Service) Deregister(ctx context.Context, workerID string) error {
	now := time.Now().UTC()
	if s.client != nil {
		_ = s.client.Del(ctx, markerKey(workerID), jobsKey(workerID)).Err()
	}
	return s.workers.UpdateFields(ctx, workerID, map[string]interface{}{
		"status":     "STOPPED",
		"stopped_at": now,
	})
}

// Assign records jobID in workerID's assignment set, called by the
// worker runtime around dispatch.
func (s *Service) Assign(ctx context.Context, workerID string, jobID uuid.UUID) error {
	if s.client == nil {
		return nil
	}
	return s.client.SAdd(ctx, jobsKey(workerID), jobID.String()).Err()
}

// Unassign removes jobID from workerID's assignment set, called on
// finish.
func (s *Service) Unassign(ctx context.Context, workerID string, jobID uuid.UUID) error {
	if s.client == nil {
		return nil
	}
	return s.client.SRem(ctx, jobsKey(workerID), jobID.String()).Err()
}

// AssignedJobs returns the job ids currently in workerID's assignment
// set.
func (s *Service) AssignedJobs(ctx context.Context, workerID string) ([]uuid.UUID, error) {
	if s.client == nil {
		return nil, nil
	}
	raw, err := s.client.SMembers(ctx, jobsKey(workerID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MarkerAlive reports whether workerID's fast-expiry marker is present.
// When no side store is wired in, it always reports true (stale
// detection then relies solely on the durable timestamp scan).
func (s *Service) MarkerAlive(ctx context.Context, workerID string) (bool, error) {
	if s.client == nil {
		return true, nil
	}
	n, err := s.client.Exists(ctx, markerKey(workerID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Service) setMarker(ctx context.Context, workerID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Set(ctx, markerKey(workerID), time.Now().UTC().Format(time.RFC3339), s.heartbeatTimeout).Err()
}

// HandleStaleWorker enumerates workerID's assignment set; every job
// still RUNNING is returned to PENDING (leaving terminal jobs alone),
// and the set is cleared.
func (s *Service) HandleStaleWorker(ctx context.Context, workerID string) error {
	jobIDs, err := s.AssignedJobs(ctx, workerID)
	if err != nil {
		return err
	}
	for _, jobID := range jobIDs {
		job, err := s.jobs.GetByID(ctx, jobID)
		if err != nil {
			s.log.Warn("could not load assigned job during stale reclaim", "worker_id", workerID, "job_id", jobID, "error", err)
			continue
		}
		if job.Status != string(jobstate.Running) {
			continue
		}
		if _, err := s.jobs.UpdateFieldsIfStatus(ctx, jobID, []string{string(jobstate.Running)}, map[string]interface{}{
			"status":    string(jobstate.Pending),
			"worker_id": nil,
		}); err != nil {
			s.log.Warn("failed to reclaim job from stale worker", "worker_id", workerID, "job_id", jobID, "error", err)
		}
	}
	if s.client != nil {
		_ = s.client.Del(ctx, jobsKey(workerID)).Err()
	}
	return nil
}
