// Package gormstoretest provides in-memory fakes of the gormstore repo
// interfaces for unit-testing the components layered on top of the
// durable store without a live Postgres instance.
package gormstoretest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/core/jobstate"
	"github.com/schedora/engine/internal/store/gormstore"
)

// FakeJobRepo is an in-memory gormstore.JobRepo.
type FakeJobRepo struct {
	mu           sync.Mutex
	byID         map[uuid.UUID]*gormstore.Job
	byIdemKey    map[string]uuid.UUID
	dependencies map[uuid.UUID][]uuid.UUID // jobID -> depends-on ids
	workflowJobs map[uuid.UUID][]uuid.UUID // workflowID -> job ids
}

// NewFakeJobRepo constructs an empty FakeJobRepo.
func NewFakeJobRepo() *FakeJobRepo {
	return &FakeJobRepo{
		byID:         map[uuid.UUID]*gormstore.Job{},
		byIdemKey:    map[string]uuid.UUID{},
		dependencies: map[uuid.UUID][]uuid.UUID{},
		workflowJobs: map[uuid.UUID][]uuid.UUID{},
	}
}

func clone(j *gormstore.Job) *gormstore.Job {
	cp := *j
	return &cp
}

func (f *FakeJobRepo) Create(ctx context.Context, job *gormstore.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := f.byIdemKey[job.IdempotencyKey]; exists {
		return engineerr.ErrDuplicateIdempotencyKey
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = "PENDING"
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	f.byID[job.ID] = clone(job)
	f.byIdemKey[job.IdempotencyKey] = job.ID
	return nil
}

func (f *FakeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return nil, engineerr.ErrJobNotFound
	}
	return clone(j), nil
}

func (f *FakeJobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*gormstore.Job, error) {
	f.mu.Lock()
	id, ok := f.byIdemKey[key]
	f.mu.Unlock()
	if !ok {
		return nil, engineerr.ErrJobNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *FakeJobRepo) dependenciesMet(j *gormstore.Job) bool {
	for _, depID := range f.dependencies[j.ID] {
		dep, ok := f.byID[depID]
		if !ok || dep.Status != "SUCCESS" {
			return false
		}
	}
	return true
}

func (f *FakeJobRepo) hasFailedDependency(j *gormstore.Job) bool {
	for _, depID := range f.dependencies[j.ID] {
		dep, ok := f.byID[depID]
		if ok && (dep.Status == "FAILED" || dep.Status == "DEAD" || dep.Status == "CANCELED") {
			return true
		}
	}
	return false
}

func (f *FakeJobRepo) ClaimNext(ctx context.Context, workerID string) (*gormstore.Job, error) {
	jobs, err := f.ClaimBatch(ctx, workerID, 1)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (f *FakeJobRepo) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var candidates []*gormstore.Job
	for _, j := range f.byID {
		if j.Status != "PENDING" || j.ScheduledAt.After(now) {
			continue
		}
		if !f.dependenciesMet(j) {
			continue
		}
		candidates = append(candidates, j)
	}
	// Mirrors the durable store's "priority DESC, created_at ASC" scan
	// order so tests against the fake observe the same claim order a
	// real Postgres-backed ClaimBatch would.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})
	var claimed []*gormstore.Job
	for _, j := range candidates {
		if len(claimed) >= limit {
			break
		}
		j.Status = "SCHEDULED"
		wid := workerID
		j.WorkerID = &wid
		claimed = append(claimed, clone(j))
	}
	return claimed, nil
}

func (f *FakeJobRepo) ClaimPendingByID(ctx context.Context, id uuid.UUID, workerID string) (*gormstore.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok || j.Status != "PENDING" {
		return nil, false, nil
	}
	j.Status = "SCHEDULED"
	wid := workerID
	j.WorkerID = &wid
	return clone(j), true, nil
}

func (f *FakeJobRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return engineerr.ErrJobNotFound
	}
	applyUpdates(j, updates)
	return nil
}

func (f *FakeJobRepo) UpdateFieldsIfStatus(ctx context.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range allowed {
		if j.Status == s {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	applyUpdates(j, updates)
	return true, nil
}

func applyUpdates(j *gormstore.Job, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			j.Status = v.(string)
		case "worker_id":
			if v == nil {
				j.WorkerID = nil
			} else if s, ok := v.(string); ok {
				j.WorkerID = &s
			}
		case "started_at":
			if t, ok := v.(time.Time); ok {
				j.StartedAt = &t
			}
		case "completed_at":
			if t, ok := v.(time.Time); ok {
				j.CompletedAt = &t
			}
		case "scheduled_at":
			if t, ok := v.(time.Time); ok {
				j.ScheduledAt = t
			}
		case "retry_count":
			if n, ok := v.(int); ok {
				j.RetryCount = n
			}
		case "error_message":
			if s, ok := v.(string); ok {
				j.ErrorMessage = &s
			}
		case "error_details":
			if b, ok := v.([]byte); ok {
				j.ErrorDetails = b
			} else if jsonv, ok := v.(interface{ MarshalJSON() ([]byte, error) }); ok {
				raw, _ := jsonv.MarshalJSON()
				j.ErrorDetails = raw
			}
		case "result":
			if b, ok := v.([]byte); ok {
				j.Result = b
			} else if jsonv, ok := v.(interface{ MarshalJSON() ([]byte, error) }); ok {
				raw, _ := jsonv.MarshalJSON()
				j.Result = raw
			}
		}
	}
}

func (f *FakeJobRepo) ReadyJobs(ctx context.Context, limit int) ([]*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var out []*gormstore.Job
	for _, j := range f.byID {
		if j.Status == "PENDING" && !j.ScheduledAt.After(now) && f.dependenciesMet(j) {
			out = append(out, clone(j))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *FakeJobRepo) BlockedJobs(ctx context.Context, limit int) ([]*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Job
	for _, j := range f.byID {
		if j.Status == "PENDING" && f.hasFailedDependency(j) {
			out = append(out, clone(j))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *FakeJobRepo) Dependencies(ctx context.Context, jobID uuid.UUID) ([]*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Job
	for _, depID := range f.dependencies[jobID] {
		if dep, ok := f.byID[depID]; ok {
			out = append(out, clone(dep))
		}
	}
	return out, nil
}

func (f *FakeJobRepo) AddDependency(ctx context.Context, jobID, dependsOnJobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dependencies[jobID] = append(f.dependencies[jobID], dependsOnJobID)
	return nil
}

func (f *FakeJobRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*gormstore.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Job
	for _, id := range f.workflowJobs[workflowID] {
		if j, ok := f.byID[id]; ok {
			out = append(out, clone(j))
		}
	}
	return out, nil
}

func (f *FakeJobRepo) AttachToWorkflow(ctx context.Context, workflowID, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflowJobs[workflowID] = append(f.workflowJobs[workflowID], jobID)
	return nil
}

// Cancel mirrors gormstore.jobRepo.Cancel: only PENDING, SCHEDULED, and
// RUNNING have a CANCELED edge in jobstate's transition table.
func (f *FakeJobRepo) Cancel(ctx context.Context, id uuid.UUID) (*gormstore.Job, error) {
	ok, err := f.UpdateFieldsIfStatus(ctx, id,
		[]string{string(jobstate.Pending), string(jobstate.Scheduled), string(jobstate.Running)},
		map[string]interface{}{"status": string(jobstate.Canceled)})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engineerr.NewInvalidTransition("non-cancelable", string(jobstate.Canceled))
	}
	return f.GetByID(ctx, id)
}

var _ gormstore.JobRepo = (*FakeJobRepo)(nil)
