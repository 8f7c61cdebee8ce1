package heartbeat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestRegisterHeartbeatDeregisterWithoutSideStore(t *testing.T) {
	workers := gormstoretest.NewFakeWorkerRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	svc := New(workers, jobs, nil, testLogger(t))

	w := &gormstore.Worker{WorkerID: "w1", Hostname: "h", PID: 1, MaxConcurrentJobs: 4}
	require.NoError(t, svc.Register(context.Background(), w))

	got, err := workers.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, svc.Heartbeat(context.Background(), "w1", nil, nil))
	got, err = workers.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, got.LastHeartbeatAt)

	require.NoError(t, svc.Deregister(context.Background(), "w1"))
	got, err = workers.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "STOPPED", got.Status)
	require.NotNil(t, got.StoppedAt)
}

func TestMarkerAliveDefaultsTrueWithoutSideStore(t *testing.T) {
	workers := gormstoretest.NewFakeWorkerRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	svc := New(workers, jobs, nil, testLogger(t))

	alive, err := svc.MarkerAlive(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestHandleStaleWorkerNoOpWithoutSideStore(t *testing.T) {
	workers := gormstoretest.NewFakeWorkerRepo()
	jobs := gormstoretest.NewFakeJobRepo()
	svc := New(workers, jobs, nil, testLogger(t))

	// With no side store, AssignedJobs returns an empty set, so there is
	// nothing to reclaim; the call must still succeed.
	require.NoError(t, svc.HandleStaleWorker(context.Background(), "w1"))
}
