package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedora/engine/internal/handler"
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

func TestExecuteSuccess(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register(handler.HandlerFunc{TypeName: "echo", Fn: func(ctx context.Context, payload handler.Payload) (handler.Result, error) {
		return handler.Result(payload), nil
	}}))

	job := &gormstore.Job{Type: "echo", Status: "PENDING", Payload: []byte(`{"x":1}`)}
	require.NoError(t, repo.Create(context.Background(), job))

	ex := New(repo, reg, testLogger(t))
	require.NoError(t, ex.Execute(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", got.Status)
	assert.JSONEq(t, `{"x":1}`, string(got.Result))
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))
}

func TestExecuteHandlerMissing(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	reg := handler.NewRegistry()
	job := &gormstore.Job{Type: "unregistered", Status: "PENDING"}
	require.NoError(t, repo.Create(context.Background(), job))

	ex := New(repo, reg, testLogger(t))
	require.NoError(t, ex.Execute(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "handler_missing")
}

func TestExecuteTimeout(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register(handler.HandlerFunc{TypeName: "sleep", Fn: func(ctx context.Context, payload handler.Payload) (handler.Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return handler.Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}))

	timeoutSecs := 1
	job := &gormstore.Job{Type: "sleep", Status: "PENDING", TimeoutSeconds: &timeoutSecs}
	require.NoError(t, repo.Create(context.Background(), job))

	ex := New(repo, reg, testLogger(t))
	require.NoError(t, ex.Execute(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "timeout")
}

func TestExecuteHandlerFailure(t *testing.T) {
	repo := gormstoretest.NewFakeJobRepo()
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register(handler.HandlerFunc{TypeName: "boom", Fn: func(ctx context.Context, payload handler.Payload) (handler.Result, error) {
		return nil, assert.AnError
	}}))

	job := &gormstore.Job{Type: "boom", Status: "PENDING"}
	require.NoError(t, repo.Create(context.Background(), job))

	ex := New(repo, reg, testLogger(t))
	require.NoError(t, ex.Execute(context.Background(), job))

	got, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
}
