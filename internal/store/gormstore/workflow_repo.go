package gormstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/platform/logger"
)

// WorkflowRepo is the durable-store surface C12 builds on.
type WorkflowRepo interface {
	Create(ctx context.Context, wf *Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
	GetByName(ctx context.Context, name string) (*Workflow, error)
	List(ctx context.Context, limit int) ([]*Workflow, error)
}

type workflowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewWorkflowRepo constructs a WorkflowRepo bound to db.
func NewWorkflowRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowRepo {
	return &workflowRepo{db: db, log: baseLog.With("repo", "WorkflowRepo")}
}

func (r *workflowRepo) Create(ctx context.Context, wf *Workflow) error {
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(wf).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return engineerr.ErrDuplicateWorkflowName
	}
	return err
}

func (r *workflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	var wf Workflow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engineerr.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *workflowRepo) GetByName(ctx context.Context, name string) (*Workflow, error) {
	var wf Workflow
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engineerr.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *workflowRepo) List(ctx context.Context, limit int) ([]*Workflow, error) {
	var rows []*Workflow
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
