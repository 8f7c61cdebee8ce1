package background

import (
	"context"
	"testing"
	"time"

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

func TestSweepOnceMarksStaleWorker(t *testing.T) {
	workers := gormstoretest.NewFakeWorkerRepo()

	oldHeartbeat := time.Now().UTC().Add(-time.Hour)
	w := &gormstore.Worker{WorkerID: "w1", Hostname: "h", PID: 1, MaxConcurrentJobs: 2, Status: "ACTIVE", LastHeartbeatAt: &oldHeartbeat}
	require.NoError(t, workers.Register(context.Background(), w))

	m := New(workers, nil, testLogger(t))
	m.sweepOnce(context.Background())

	got, err := workers.GetByID(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "STALE", got.Status)
}

func TestCleanupOnceDeletesOldStoppedWorkers(t *testing.T) {
	workers := gormstoretest.NewFakeWorkerRepo()

	oldStop := time.Now().UTC().Add(-2 * time.Hour)
	w := &gormstore.Worker{WorkerID: "w1", Hostname: "h", PID: 1, MaxConcurrentJobs: 2, Status: "STOPPED", StoppedAt: &oldStop}
	require.NoError(t, workers.Register(context.Background(), w))

	m := New(workers, nil, testLogger(t))
	m.cleanupAfter = time.Hour
	m.cleanupOnce(context.Background())

	_, err := workers.GetByID(context.Background(), "w1")
	assert.Error(t, err)
}
