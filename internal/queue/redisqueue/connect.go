package redisqueue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/schedora/engine/internal/platform/envutil"
	"github.com/schedora/engine/internal/platform/logger"
)

// Connect opens the side store's Redis client and verifies reachability
// with a bounded ping. REDIS_URL, when set, takes priority over the
// discrete REDIS_* variables.
func Connect(baseLog *logger.Logger) (*redis.Client, error) {
	connLog := baseLog.With("component", "redisqueue.Connect")

	addr := envutil.String("REDIS_URL", "")
	var client *redis.Client
	if addr != "" {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:        envutil.String("REDIS_HOST", "localhost") + ":" + envutil.String("REDIS_PORT", "6379"),
			DialTimeout: 5 * time.Second,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		connLog.Warn("redis ping failed at startup; side store will degrade to unavailable", "error", err)
	}
	return client, nil
}
