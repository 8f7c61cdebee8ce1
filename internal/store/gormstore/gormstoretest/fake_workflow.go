package gormstoretest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/store/gormstore"
)

// FakeWorkflowRepo is an in-memory gormstore.WorkflowRepo.
type FakeWorkflowRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*gormstore.Workflow
	byName map[string]uuid.UUID
}

// NewFakeWorkflowRepo constructs an empty FakeWorkflowRepo.
func NewFakeWorkflowRepo() *FakeWorkflowRepo {
	return &FakeWorkflowRepo{
		byID:   map[uuid.UUID]*gormstore.Workflow{},
		byName: map[string]uuid.UUID{},
	}
}

func cloneWorkflow(wf *gormstore.Workflow) *gormstore.Workflow {
	cp := *wf
	return &cp
}

func (f *FakeWorkflowRepo) Create(ctx context.Context, wf *gormstore.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if _, exists := f.byName[wf.Name]; exists {
		return engineerr.ErrDuplicateWorkflowName
	}
	f.byID[wf.ID] = cloneWorkflow(wf)
	f.byName[wf.Name] = wf.ID
	return nil
}

func (f *FakeWorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*gormstore.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.byID[id]
	if !ok {
		return nil, engineerr.ErrWorkflowNotFound
	}
	return cloneWorkflow(wf), nil
}

func (f *FakeWorkflowRepo) GetByName(ctx context.Context, name string) (*gormstore.Workflow, error) {
	f.mu.Lock()
	id, ok := f.byName[name]
	f.mu.Unlock()
	if !ok {
		return nil, engineerr.ErrWorkflowNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *FakeWorkflowRepo) List(ctx context.Context, limit int) ([]*gormstore.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*gormstore.Workflow
	for _, wf := range f.byID {
		out = append(out, cloneWorkflow(wf))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ gormstore.WorkflowRepo = (*FakeWorkflowRepo)(nil)
