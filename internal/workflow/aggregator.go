// Package workflow implements the workflow aggregator (C12): grouping
// jobs and computing a rolled-up workflow status.
package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/schedora/engine/internal/store/gormstore"
)

// Overall is the workflow's aggregate status.
type Overall string

const (
	OverallFailed    Overall = "FAILED"
	OverallCompleted Overall = "COMPLETED"
	OverallRunning   Overall = "RUNNING"
	OverallPending   Overall = "PENDING"
)

// Rollup is the result of aggregating a workflow's member jobs.
type Rollup struct {
	Total     int
	Completed int
	Failed    int
	Running   int
	Overall   Overall
}

// Aggregator computes workflow status rollups.
type Aggregator struct {
	workflows gormstore.WorkflowRepo
	jobs      gormstore.JobRepo
}

// New constructs an Aggregator.
func New(workflows gormstore.WorkflowRepo, jobs gormstore.JobRepo) *Aggregator {
	return &Aggregator{workflows: workflows, jobs: jobs}
}

var failedStatuses = map[string]bool{"FAILED": true, "DEAD": true, "CANCELED": true}
var runningStatuses = map[string]bool{"RUNNING": true, "SCHEDULED": true}

// Status computes the rollup for workflowID.
func (a *Aggregator) Status(ctx context.Context, workflowID uuid.UUID) (Rollup, error) {
	if _, err := a.workflows.GetByID(ctx, workflowID); err != nil {
		return Rollup{}, err
	}
	jobs, err := a.jobs.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return Rollup{}, err
	}

	var r Rollup
	r.Total = len(jobs)
	for _, j := range jobs {
		switch {
		case j.Status == "SUCCESS":
			r.Completed++
		case failedStatuses[j.Status]:
			r.Failed++
		case runningStatuses[j.Status]:
			r.Running++
		}
	}

	switch {
	case r.Failed > 0:
		r.Overall = OverallFailed
	case r.Total > 0 && r.Completed == r.Total:
		r.Overall = OverallCompleted
	case r.Running > 0:
		r.Overall = OverallRunning
	default:
		r.Overall = OverallPending
	}
	return r, nil
}
