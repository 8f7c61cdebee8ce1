package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/schedora/engine/internal/store/gormstore"
	"github.com/schedora/engine/internal/store/gormstore/gormstoretest"
)

func seedWorkflow(t *testing.T, workflows *gormstoretest.FakeWorkflowRepo, jobs *gormstoretest.FakeJobRepo, statuses ...string) uuid.UUID {
	t.Helper()
	wf := &gormstore.Workflow{Name: "wf-" + uuid.New().String()}
	require.NoError(t, workflows.Create(context.Background(), wf))
	for _, status := range statuses {
		job := &gormstore.Job{IdempotencyKey: uuid.New().String(), Type: "noop", Status: status}
		require.NoError(t, jobs.Create(context.Background(), job))
		require.NoError(t, jobs.AttachToWorkflow(context.Background(), wf.ID, job.ID))
	}
	return wf.ID
}

func TestStatusAllCompleted(t *testing.T) {
	workflows := gormstoretest.NewFakeWorkflowRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	id := seedWorkflow(t, workflows, jobs, "SUCCESS", "SUCCESS")

	agg := New(workflows, jobs)
	r, err := agg.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, Rollup{Total: 2, Completed: 2, Overall: OverallCompleted}, r)
}

func TestStatusFailureDominates(t *testing.T) {
	workflows := gormstoretest.NewFakeWorkflowRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	id := seedWorkflow(t, workflows, jobs, "SUCCESS", "DEAD", "RUNNING")

	agg := New(workflows, jobs)
	r, err := agg.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OverallFailed, r.Overall)
	require.Equal(t, 1, r.Failed)
	require.Equal(t, 1, r.Running)
	require.Equal(t, 1, r.Completed)
}

func TestStatusRunningWhenNoFailuresOrCompletion(t *testing.T) {
	workflows := gormstoretest.NewFakeWorkflowRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	id := seedWorkflow(t, workflows, jobs, "RUNNING", "SCHEDULED", "PENDING")

	agg := New(workflows, jobs)
	r, err := agg.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OverallRunning, r.Overall)
}

func TestStatusPendingWhenNothingStartedYet(t *testing.T) {
	workflows := gormstoretest.NewFakeWorkflowRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	id := seedWorkflow(t, workflows, jobs, "PENDING", "PENDING")

	agg := New(workflows, jobs)
	r, err := agg.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, OverallPending, r.Overall)
}

func TestStatusUnknownWorkflow(t *testing.T) {
	workflows := gormstoretest.NewFakeWorkflowRepo()
	jobs := gormstoretest.NewFakeJobRepo()

	agg := New(workflows, jobs)
	_, err := agg.Status(context.Background(), uuid.New())
	require.Error(t, err)
}
