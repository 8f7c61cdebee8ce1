package deps

import (
	"context"

	"github.com/google/uuid"

	"github.com/schedora/engine/internal/store/gormstore"
)

// Resolver exposes the bulk ready/blocked queries over a JobRepo.
type Resolver struct {
	jobs gormstore.JobRepo
}

// NewResolver constructs a Resolver bound to a job repo.
func NewResolver(jobs gormstore.JobRepo) *Resolver {
	return &Resolver{jobs: jobs}
}

// ReadyJobs returns PENDING jobs whose dependencies are met (empty set or
// every predecessor SUCCESS), as a single set-based query.
func (r *Resolver) ReadyJobs(ctx context.Context, limit int) ([]*gormstore.Job, error) {
	return r.jobs.ReadyJobs(ctx, limit)
}

// BlockedJobs returns PENDING jobs with at least one failed predecessor.
func (r *Resolver) BlockedJobs(ctx context.Context, limit int) ([]*gormstore.Job, error) {
	return r.jobs.BlockedJobs(ctx, limit)
}

// DependenciesMet looks up jobID's predecessors and reports whether they
// are all satisfied.
func (r *Resolver) DependenciesMet(ctx context.Context, jobID uuid.UUID) (bool, error) {
	predecessors, err := r.jobs.Dependencies(ctx, jobID)
	if err != nil {
		return false, err
	}
	return DependenciesMet(predecessors), nil
}
