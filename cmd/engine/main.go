package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schedora/engine/internal/app"
	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize engine: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := shutdown.NotifyContext(context.Background())
	defer cancel()

	workerCount := envutil.Int("WORKER_COUNT", 1)
	maxConcurrentJobs := int64(envutil.Int("WORKER_MAX_CONCURRENT_JOBS", 5))
	pollInterval := envutil.Duration("WORKER_POLL_INTERVAL", time.Second)

	if err := a.SpawnWorkers(ctx, workerCount, maxConcurrentJobs, pollInterval); err != nil {
		a.Log.Error("failed to spawn workers", "error", err)
		os.Exit(1)
	}

	a.Log.Info("engine starting", "workers", workerCount, "max_concurrent_jobs", maxConcurrentJobs)
	a.Run(ctx, envutil.Duration("WORKER_SHUTDOWN_TIMEOUT", 10*time.Second))
	a.Log.Info("engine stopped")
}
