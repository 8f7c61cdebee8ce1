package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedora/engine/internal/core/retry"
	"github.com/schedora/engine/internal/store/gormstore"
	"github.com/schedora/engine/internal/store/gormstore/gormstoretest"
)

func TestRetryLayerSchedulesRetry(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	job := &gormstore.Job{Type: "sleep", Status: "PENDING", MaxRetries: 2, RetryPolicy: string(retry.Exponential)}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, repo.UpdateFields(context.Background(), job.ID, map[string]interface{}{"status": "FAILED"}))
	job.Status = "FAILED"

	rl := NewRetryLayer(repo, nil, testLogger(t))
	require.NoError(t, rl.HandleFailure(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "SCHEDULED", got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.True(t, got.ScheduledAt.After(got.CreatedAt) || !got.ScheduledAt.IsZero())
}

func TestRetryLayerExhausts(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	job := &gormstore.Job{Type: "sleep", Status: "PENDING", MaxRetries: 0, RetryPolicy: string(retry.Fixed)}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NoError(t, repo.UpdateFields(context.Background(), job.ID, map[string]interface{}{"status": "FAILED"}))
	job.Status = "FAILED"

	rl := NewRetryLayer(repo, nil, testLogger(t))
	require.NoError(t, rl.HandleFailure(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "DEAD", got.Status)
	assert.Equal(t, 0, got.RetryCount)
}
