package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/platform/logger"
)

// WorkerRepo is the durable-store surface C10/C11 build on.
type WorkerRepo interface {
	Register(ctx context.Context, w *Worker) error
	GetByID(ctx context.Context, workerID string) (*Worker, error)
	List(ctx context.Context, status string) ([]*Worker, error)

	UpdateFields(ctx context.Context, workerID string, updates map[string]interface{}) error

	// ActiveWithoutRecentHeartbeat returns ACTIVE workers whose
	// last_heartbeat_at is older than cutoff — the durable-timestamp
	// half of stale detection, used when the fast-expiry marker check
	// (side store) is unavailable or as a belt-and-suspenders scan.
	ActiveWithoutRecentHeartbeat(ctx context.Context, cutoff time.Time) ([]*Worker, error)

	// StoppedBefore returns STOPPED workers whose stopped_at predates
	// cutoff, for the cleanup loop.
	StoppedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Worker, error)
	Delete(ctx context.Context, workerID string) error

	IncrementCurrentJobCount(ctx context.Context, workerID string, delta int) error

	// IncrementCounters adds the given deltas to the worker's lifetime
	// processed/succeeded/failed_count columns in one update.
	IncrementCounters(ctx context.Context, workerID string, processed, succeeded, failed int64) error
}

type workerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewWorkerRepo constructs a WorkerRepo bound to db.
func NewWorkerRepo(db *gorm.DB, baseLog *logger.Logger) WorkerRepo {
	return &workerRepo{db: db, log: baseLog.With("repo", "WorkerRepo")}
}

func (r *workerRepo) Register(ctx context.Context, w *Worker) error {
	now := time.Now().UTC()
	if w.Status == "" {
		w.Status = "ACTIVE"
	}
	if w.StartedAt == nil {
		w.StartedAt = &now
	}
	return r.db.WithContext(ctx).Clauses(onConflictUpdateWorker()).Create(w).Error
}

func (r *workerRepo) GetByID(ctx context.Context, workerID string) (*Worker, error) {
	var w Worker
	err := r.db.WithContext(ctx).Where("worker_id = ?", workerID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engineerr.ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workerRepo) List(ctx context.Context, status string) ([]*Worker, error) {
	var rows []*Worker
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *workerRepo) UpdateFields(ctx context.Context, workerID string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&Worker{}).Where("worker_id = ?", workerID).Updates(updates).Error
}

func (r *workerRepo) ActiveWithoutRecentHeartbeat(ctx context.Context, cutoff time.Time) ([]*Worker, error) {
	var rows []*Worker
	err := r.db.WithContext(ctx).
		Where("status = ?", "ACTIVE").
		Where("last_heartbeat_at IS NULL OR last_heartbeat_at < ?", cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *workerRepo) StoppedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Worker, error) {
	var rows []*Worker
	q := r.db.WithContext(ctx).
		Where("status = ?", "STOPPED").
		Where("stopped_at IS NOT NULL AND stopped_at < ?", cutoff).
		Order("stopped_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *workerRepo) Delete(ctx context.Context, workerID string) error {
	return r.db.WithContext(ctx).Where("worker_id = ?", workerID).Delete(&Worker{}).Error
}

func (r *workerRepo) IncrementCurrentJobCount(ctx context.Context, workerID string, delta int) error {
	return r.db.WithContext(ctx).Model(&Worker{}).
		Where("worker_id = ?", workerID).
		UpdateColumn("current_job_count", gorm.Expr("GREATEST(current_job_count + ?, 0)", delta)).Error
}

func (r *workerRepo) IncrementCounters(ctx context.Context, workerID string, processed, succeeded, failed int64) error {
	return r.db.WithContext(ctx).Model(&Worker{}).
		Where("worker_id = ?", workerID).
		UpdateColumns(map[string]interface{}{
			"processed":    gorm.Expr("processed + ?", processed),
			"succeeded":    gorm.Expr("succeeded + ?", succeeded),
			"failed_count": gorm.Expr("failed_count + ?", failed),
		}).Error
}
