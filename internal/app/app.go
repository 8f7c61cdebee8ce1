// Package app wires the engine's components together: durable store,
// side store, scheduler, executor, worker pool, heartbeat service, and
// background loops. It is process glue, not a feature layer — every
// operation it exposes is already implemented by the component it
// delegates to.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/schedora/engine/internal/background"
	"github.com/schedora/engine/internal/executor"
	"github.com/schedora/engine/internal/handler"
	"github.com/schedora/engine/internal/heartbeat"
	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/logger"
	"github.com/schedora/engine/internal/queue/redisqueue"
	"github.com/schedora/engine/internal/scheduler"
	"github.com/schedora/engine/internal/store/gormstore"
	"github.com/schedora/engine/internal/worker"
	"github.com/schedora/engine/internal/workflow"
)

// App holds every wired component for one engine process. workerPool
// holds the runtimes created by SpawnWorkers (cmd/engine sizes it from
// WORKER_COUNT, default 1); each runs its own poll loop over the shared
// Scheduler.
type App struct {
	Log *logger.Logger

	DB    *gorm.DB
	Redis *redis.Client

	Jobs      gormstore.JobRepo
	Workers   gormstore.WorkerRepo
	Workflows gormstore.WorkflowRepo

	Queue      *redisqueue.Queue
	Scheduler  *scheduler.Scheduler
	Registry   *handler.Registry
	Executor   *executor.Executor
	RetryLayer *executor.RetryLayer
	Heartbeat  *heartbeat.Service
	Background *background.Manager
	Aggregator *workflow.Aggregator

	workerPool []*worker.Worker
}

// New opens the durable store and (best-effort) the side store, runs
// migrations, and wires every component. A Redis connection failure is
// not fatal: the engine degrades to DB-only polling per
// engineerr.ErrSideStoreUnavailable handling throughout the queue and
// heartbeat packages.
func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := gormstore.Connect(log)
	if err != nil {
		return nil, fmt.Errorf("connect to durable store: %w", err)
	}
	if err := gormstore.AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	var redisClient *redis.Client
	var queue *redisqueue.Queue
	if envutil.String("QUEUE_DISABLED", "") == "" {
		redisClient, err = redisqueue.Connect(log)
		if err != nil {
			log.Warn("side store unavailable at startup, continuing in DB-only mode", "error", err)
		} else {
			queue = redisqueue.New(redisClient, envutil.String("QUEUE_NAME", "jobs"))
		}
	}

	jobs := gormstore.NewJobRepo(db, log)
	workers := gormstore.NewWorkerRepo(db, log)
	workflows := gormstore.NewWorkflowRepo(db, log)

	sched := scheduler.New(jobs, queue, log)
	registry := handler.NewRegistry()
	exec := executor.New(jobs, registry, log)
	retry := executor.NewRetryLayer(jobs, queue, log)
	hb := heartbeat.New(workers, jobs, redisClient, log)
	bg := background.New(workers, hb, log)
	agg := workflow.New(workflows, jobs)

	a := &App{
		Log:        log,
		DB:         db,
		Redis:      redisClient,
		Jobs:       jobs,
		Workers:    workers,
		Workflows:  workflows,
		Queue:      queue,
		Scheduler:  sched,
		Registry:   registry,
		Executor:   exec,
		RetryLayer: retry,
		Heartbeat:  hb,
		Background: bg,
		Aggregator: agg,
	}
	return a, nil
}

// SpawnWorkers registers and constructs n worker runtimes sharing the
// app's scheduler/executor/retry layer. Call before Run.
func (a *App) SpawnWorkers(ctx context.Context, n int, maxConcurrentJobs int64, pollInterval time.Duration) error {
	hostname, _ := os.Hostname()
	for i := 0; i < n; i++ {
		workerID := fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), i)
		w := &gormstore.Worker{
			WorkerID:          workerID,
			Hostname:          hostname,
			PID:               os.Getpid(),
			MaxConcurrentJobs: int(maxConcurrentJobs),
		}
		if err := a.Heartbeat.Register(ctx, w); err != nil {
			return fmt.Errorf("register worker %s: %w", workerID, err)
		}
		a.workerPool = append(a.workerPool, worker.New(worker.Config{
			WorkerID:          workerID,
			MaxConcurrentJobs: maxConcurrentJobs,
			PollInterval:      pollInterval,
		}, a.Scheduler, a.Executor, a.RetryLayer, a.Heartbeat, a.Workers, a.Log))
	}
	return nil
}

// Run starts the background loops and every spawned worker, blocking
// until ctx is canceled, then waits up to shutdownTimeout for them to
// drain before deregistering each worker.
func (a *App) Run(ctx context.Context, shutdownTimeout time.Duration) {
	bgDone := make(chan struct{})
	go func() {
		a.Background.Run(ctx)
		close(bgDone)
	}()

	var wg sync.WaitGroup
	for _, w := range a.workerPool {
		wg.Add(1)
		go func(w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx, shutdownTimeout)
		}(w)
	}

	<-ctx.Done()
	wg.Wait()
	<-bgDone

	deregisterCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, w := range a.workerPool {
		if err := a.Heartbeat.Deregister(deregisterCtx, w.ID()); err != nil {
			a.Log.Warn("failed to deregister worker on shutdown", "worker_id", w.ID(), "error", err)
		}
	}
}

// Close releases the durable store and side store connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.Log.Sync()
}
