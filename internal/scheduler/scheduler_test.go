package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/schedora/engine/internal/core/engineerr"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/store/gormstore"
	"github.com/schedora/engine/internal/store/gormstore/gormstoretest"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

// Duplicate idempotency key on job submission surfaces as a distinct
// error rather than creating a second row.
func TestDuplicateIdempotencyKeyRejected(t *testing.T) {
	jobs := gormstoretest.NewFakeJobRepo()
	first := &gormstore.Job{IdempotencyKey: "order-42", Type: "charge"}
	require.NoError(t, jobs.Create(context.Background(), first))

	second := &gormstore.Job{IdempotencyKey: "order-42", Type: "charge"}
	err := jobs.Create(context.Background(), second)
	require.ErrorIs(t, err, engineerr.ErrDuplicateIdempotencyKey)
}

// Among several ready jobs, the claimer always hands out the
// highest-priority one first, and ties break on submission order.
func TestClaimPrefersHigherPriority(t *testing.T) {
	jobs := gormstoretest.NewFakeJobRepo()
	s := New(jobs, nil, testLogger(t))

	low := &gormstore.Job{IdempotencyKey: "low", Type: "noop", Priority: 1}
	high := &gormstore.Job{IdempotencyKey: "high", Type: "noop", Priority: 9}
	mid := &gormstore.Job{IdempotencyKey: "mid", Type: "noop", Priority: 5}
	require.NoError(t, jobs.Create(context.Background(), low))
	require.NoError(t, jobs.Create(context.Background(), high))
	require.NoError(t, jobs.Create(context.Background(), mid))

	first, err := s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, high.ID, first.ID)

	second, err := s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, mid.ID, second.ID)

	third, err := s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, low.ID, third.ID)
}

// A job with an unmet dependency is not claimable; once its predecessor
// succeeds, it becomes ready.
func TestClaimBlockedByUnmetDependency(t *testing.T) {
	jobs := gormstoretest.NewFakeJobRepo()
	s := New(jobs, nil, testLogger(t))

	upstream := &gormstore.Job{IdempotencyKey: "upstream", Type: "noop", Status: "RUNNING"}
	downstream := &gormstore.Job{IdempotencyKey: "downstream", Type: "noop"}
	require.NoError(t, jobs.Create(context.Background(), upstream))
	require.NoError(t, jobs.Create(context.Background(), downstream))
	require.NoError(t, jobs.AddDependency(context.Background(), downstream.ID, upstream.ID))

	job, err := s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.Nil(t, job, "downstream must not be claimable while upstream is unresolved")

	require.NoError(t, jobs.UpdateFields(context.Background(), upstream.ID, map[string]interface{}{"status": "SUCCESS"}))

	job, err = s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, downstream.ID, job.ID)
}

// A job scheduled in the future is not claimable until it becomes due.
func TestClaimRespectsScheduledAt(t *testing.T) {
	jobs := gormstoretest.NewFakeJobRepo()
	s := New(jobs, nil, testLogger(t))

	future := &gormstore.Job{IdempotencyKey: "future", Type: "noop", ScheduledAt: time.Now().UTC().Add(time.Hour)}
	require.NoError(t, jobs.Create(context.Background(), future))

	job, err := s.Claim(context.Background(), "w1")
	require.NoError(t, err)
	require.Nil(t, job)
}
