package gormstoretest

import (
	"context"
	"sync"
	"time"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/store/gormstore"
)

// FakeWorkerRepo is an in-memory gormstore.WorkerRepo.
type FakeWorkerRepo struct {
	mu   sync.Mutex
	byID map[string]*gormstore.Worker
}

// NewFakeWorkerRepo constructs an empty FakeWorkerRepo.
func NewFakeWorkerRepo() *FakeWorkerRepo {
	return &FakeWorkerRepo{byID: map[string]*gormstore.Worker{}}
}

func cloneWorker(w *gormstore.Worker) *gormstore.Worker {
	cp := *w
	return &cp
}

func (f *FakeWorkerRepo) Register(ctx context.Context, w *gormstore.Worker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if w.Status == "" {
		w.Status = "ACTIVE"
	}
	if w.StartedAt == nil {
		w.StartedAt = &now
	}
	f.byID[w.WorkerID] = cloneWorker(w)
	return nil
}

func (f *FakeWorkerRepo) GetByID(ctx context.Context, workerID string) (*gormstore.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[workerID]
	if !ok {
		return nil, engineerr.ErrWorkerNotFound
	}
	return cloneWorker(w), nil
}

func (f *FakeWorkerRepo) List(ctx context.Context, status string) ([]*gormstore.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Worker
	for _, w := range f.byID {
		if status == "" || w.Status == status {
			out = append(out, cloneWorker(w))
		}
	}
	return out, nil
}

func (f *FakeWorkerRepo) UpdateFields(ctx context.Context, workerID string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[workerID]
	if !ok {
		return engineerr.ErrWorkerNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			w.Status = v.(string)
		case "stopped_at":
			if t, ok := v.(time.Time); ok {
				w.StoppedAt = &t
			}
		case "last_heartbeat_at":
			if t, ok := v.(time.Time); ok {
				w.LastHeartbeatAt = &t
			}
		}
	}
	return nil
}

func (f *FakeWorkerRepo) ActiveWithoutRecentHeartbeat(ctx context.Context, cutoff time.Time) ([]*gormstore.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Worker
	for _, w := range f.byID {
		if w.Status != "ACTIVE" {
			continue
		}
		if w.LastHeartbeatAt == nil || w.LastHeartbeatAt.Before(cutoff) {
			out = append(out, cloneWorker(w))
		}
	}
	return out, nil
}

func (f *FakeWorkerRepo) StoppedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*gormstore.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Worker
	for _, w := range f.byID {
		if w.Status == "STOPPED" && w.StoppedAt != nil && w.StoppedAt.Before(cutoff) {
			out = append(out, cloneWorker(w))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *FakeWorkerRepo) Delete(ctx context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, workerID)
	return nil
}

func (f *FakeWorkerRepo) IncrementCurrentJobCount(ctx context.Context, workerID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[workerID]
	if !ok {
		return engineerr.ErrWorkerNotFound
	}
	w.CurrentJobCount += delta
	if w.CurrentJobCount < 0 {
		w.CurrentJobCount = 0
	}
	return nil
}

func (f *FakeWorkerRepo) IncrementCounters(ctx context.Context, workerID string, processed, succeeded, failed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[workerID]
	if !ok {
		return engineerr.ErrWorkerNotFound
	}
	w.Processed += processed
	w.Succeeded += succeeded
	w.FailedCount += failed
	return nil
}

var _ gormstore.WorkerRepo = (*FakeWorkerRepo)(nil)
