package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/core/jobstate"
	"github.com/schedora/engine/internal/platform/logger"
)

// JobRepo is the durable-store surface C4/C6/C8/C12 build on.
type JobRepo interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Job, error)

	// ClaimNext opens a skip-locked scan over PENDING jobs whose
	// scheduled_at is due and whose dependencies are met, tags the winner
	// SCHEDULED with workerID, and commits in one transaction.
	ClaimNext(ctx context.Context, workerID string) (*Job, error)
	// ClaimBatch is the same scan, returning up to limit rows.
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]*Job, error)

	// ClaimPendingByID performs the optimistic-concurrency claim used by
	// the queue-present path: PENDING->SCHEDULED guarded by a WHERE
	// status='PENDING' clause. ok is false when another claimer won, or
	// the row was no longer PENDING.
	ClaimPendingByID(ctx context.Context, id uuid.UUID, workerID string) (job *Job, ok bool, err error)

	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsIfStatus applies updates only if the row's current
	// status matches one of allowed; returns whether a row was changed.
	UpdateFieldsIfStatus(ctx context.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error)

	ReadyJobs(ctx context.Context, limit int) ([]*Job, error)
	BlockedJobs(ctx context.Context, limit int) ([]*Job, error)

	Dependencies(ctx context.Context, jobID uuid.UUID) ([]*Job, error)
	AddDependency(ctx context.Context, jobID, dependsOnJobID uuid.UUID) error

	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*Job, error)
	AttachToWorkflow(ctx context.Context, workflowID, jobID uuid.UUID) error

	Cancel(ctx context.Context, id uuid.UUID) (*Job, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewJobRepo constructs a JobRepo bound to db.
func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

// Create inserts a job. A unique-constraint violation on idempotency_key
// surfaces as engineerr.ErrDuplicateIdempotencyKey; this is what resolves
// a check-then-insert race to exactly one surviving row (the race loses
// at the database's unique index, not at application logic).
func (r *jobRepo) Create(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = "PENDING"
	}
	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return engineerr.ErrDuplicateIdempotencyKey
	}
	return err
}

func (r *jobRepo) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engineerr.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engineerr.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// readyScan is the query fragment shared by ClaimNext/ClaimBatch/ReadyJobs:
// PENDING, due, and with no unmet dependency (dependency set is empty, or
// every predecessor has status=SUCCESS).
func readyScan(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("status = ?", "PENDING").
		Where("scheduled_at <= ?", now).
		Where(`NOT EXISTS (
			SELECT 1 FROM job_dependencies jd
			JOIN jobs dep ON dep.id = jd.depends_on_job_id
			WHERE jd.job_id = jobs.id AND dep.status <> ?
		)`, "SUCCESS")
}

func (r *jobRepo) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	jobs, err := r.ClaimBatch(ctx, workerID, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (r *jobRepo) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var claimed []*Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []Job
		q := readyScan(tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}), now).
			Order("priority DESC, created_at ASC").
			Limit(limit)
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if err := tx.Model(&Job{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"status":     "SCHEDULED",
			"worker_id":  workerID,
			"updated_at": now,
		}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = "SCHEDULED"
			wid := workerID
			rows[i].WorkerID = &wid
			claimed = append(claimed, &rows[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimPendingByID is the queue-present claim path: the caller already
// knows which job_id to try (popped from the priority queue) and only
// needs the optimistic-concurrency guard, not a full locked scan.
func (r *jobRepo) ClaimPendingByID(ctx context.Context, id uuid.UUID, workerID string) (*Job, bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, "PENDING").
		Updates(map[string]interface{}{
			"status":     "SCHEDULED",
			"worker_id":  workerID,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *jobRepo) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(updates).Error
}

func (r *jobRepo) UpdateFieldsIfStatus(ctx context.Context, id uuid.UUID, allowed []string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) ReadyJobs(ctx context.Context, limit int) ([]*Job, error) {
	now := time.Now().UTC()
	var rows []*Job
	q := readyScan(r.db.WithContext(ctx), now).Order("priority DESC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRepo) BlockedJobs(ctx context.Context, limit int) ([]*Job, error) {
	var rows []*Job
	q := r.db.WithContext(ctx).Where("status = ?", "PENDING").
		Where(`EXISTS (
			SELECT 1 FROM job_dependencies jd
			JOIN jobs dep ON dep.id = jd.depends_on_job_id
			WHERE jd.job_id = jobs.id AND dep.status IN ?
		)`, []string{"FAILED", "DEAD", "CANCELED"}).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRepo) Dependencies(ctx context.Context, jobID uuid.UUID) ([]*Job, error) {
	var rows []*Job
	err := r.db.WithContext(ctx).
		Joins("JOIN job_dependencies jd ON jd.depends_on_job_id = jobs.id").
		Where("jd.job_id = ?", jobID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRepo) AddDependency(ctx context.Context, jobID, dependsOnJobID uuid.UUID) error {
	edge := &JobDependency{JobID: jobID, DependsOnJobID: dependsOnJobID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error
}

func (r *jobRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*Job, error) {
	var rows []*Job
	err := r.db.WithContext(ctx).
		Joins("JOIN workflow_jobs wj ON wj.job_id = jobs.id").
		Where("wj.workflow_id = ?", workflowID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *jobRepo) AttachToWorkflow(ctx context.Context, workflowID, jobID uuid.UUID) error {
	link := &WorkflowJob{WorkflowID: workflowID, JobID: jobID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
}

// Cancel transitions a job to CANCELED. Only PENDING, SCHEDULED, and
// RUNNING have a CANCELED edge in jobstate's transition table; FAILED
// and RETRYING are not cancelable and are rejected.
func (r *jobRepo) Cancel(ctx context.Context, id uuid.UUID) (*Job, error) {
	ok, err := r.UpdateFieldsIfStatus(ctx, id,
		[]string{string(jobstate.Pending), string(jobstate.Scheduled), string(jobstate.Running)},
		map[string]interface{}{"status": string(jobstate.Canceled)})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, engineerr.NewInvalidTransition("non-cancelable", string(jobstate.Canceled))
	}
	return r.GetByID(ctx, id)
}

func isUniqueViolation(err error) bool {
	// Matches Postgres' unique_violation SQLSTATE (23505) as surfaced by
	// pgx/pgconn without importing the driver package here, keeping the
	// repo layer decoupled from the specific pgx error type.
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState() == "23505"
	}
	return false
}
