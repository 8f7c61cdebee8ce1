// Package background implements the background loops (C11): the
// periodic stale-worker sweep and the cleanup of long-stopped workers.
package background

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schedora/engine/internal/heartbeat"
	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/store/gormstore"
)

// Manager runs the stale sweep and cleanup loops together and gathers
// their shutdown.
type Manager struct {
	workers   gormstore.WorkerRepo
	heartbeat *heartbeat.Service
	log       *logger.Logger

	staleCheckInterval time.Duration
	cleanupInterval    time.Duration
	cleanupAfter       time.Duration
	heartbeatTimeout   time.Duration

	shutdownGrace time.Duration
}

// New constructs a Manager. Intervals/thresholds default per
// SPEC_FULL.md §1.1 and are overridable via WORKER_STALE_CHECK_INTERVAL,
// WORKER_CLEANUP_AFTER, and WORKER_HEARTBEAT_TIMEOUT.
func New(workers gormstore.WorkerRepo, hb *heartbeat.Service, baseLog *logger.Logger) *Manager {
	return &Manager{
		workers:            workers,
		heartbeat:          hb,
		log:                baseLog.With("component", "BackgroundLoops"),
		staleCheckInterval: envutil.Duration("WORKER_STALE_CHECK_INTERVAL", 60*time.Second),
		cleanupInterval:    envutil.Duration("WORKER_CLEANUP_INTERVAL", 5*time.Minute),
		cleanupAfter:       envutil.Duration("WORKER_CLEANUP_AFTER", time.Hour),
		heartbeatTimeout:   envutil.Duration("WORKER_HEARTBEAT_TIMEOUT", 90*time.Second),
		shutdownGrace:      envutil.Duration("WORKER_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Run starts both loops and blocks until ctx is canceled, then waits up
// to the configured grace period for them to join before returning.
func (m *Manager) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { m.staleSweepLoop(gctx); return nil })
	g.Go(func() error { m.cleanupLoop(gctx); return nil })

	done := make(chan struct{})
	go func() { _ = g.Wait(); close(done) }()

	<-ctx.Done()
	select {
	case <-done:
	case <-time.After(m.shutdownGrace):
		m.log.Warn("background loops did not join within grace period")
	}
}

func (m *Manager) staleSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.staleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *Manager) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.heartbeatTimeout)
	stale, err := m.workers.ActiveWithoutRecentHeartbeat(ctx, cutoff)
	if err != nil {
		m.log.Warn("stale sweep scan failed", "error", err)
		return
	}
	for _, w := range stale {
		// A per-worker reclaim failure must not abort the remaining sweep.
		func(workerID string) {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("stale reclaim panicked", "worker_id", workerID, "panic", r)
				}
			}()
			if m.heartbeat != nil {
				if alive, err := m.heartbeat.MarkerAlive(ctx, workerID); err == nil && alive {
					return
				}
			}
			if err := m.workers.UpdateFields(ctx, workerID, map[string]interface{}{"status": "STALE"}); err != nil {
				m.log.Warn("failed to mark worker stale", "worker_id", workerID, "error", err)
				return
			}
			if m.heartbeat != nil {
				if err := m.heartbeat.HandleStaleWorker(ctx, workerID); err != nil {
					m.log.Warn("failed to reclaim stale worker's jobs", "worker_id", workerID, "error", err)
				}
			}
		}(w.WorkerID)
	}
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupOnce(ctx)
		}
	}
}

func (m *Manager) cleanupOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cleanupAfter)
	stopped, err := m.workers.StoppedBefore(ctx, cutoff, 0)
	if err != nil {
		m.log.Warn("cleanup scan failed", "error", err)
		return
	}
	for _, w := range stopped {
		if err := m.workers.Delete(ctx, w.WorkerID); err != nil {
			m.log.Warn("failed to delete long-stopped worker", "worker_id", w.WorkerID, "error", err)
		}
	}
}
