package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/pautaradar/newsradar/infrastructure/cache"
	"github.com/pautaradar/newsradar/infrastructure/config"
	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/queue"
)

// openPostgres opens a connection pool and verifies it with a ping,
// grounded on internal/platform/database.Open's dial-then-ping shape.
func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Build assembles a WorkerContext from the environment: connects Postgres
// and Redis, wires the Redis-backed cache and queue, and sets up logging
// and metrics for service. Every process in cmd/ calls this instead of
// repeating the dial/ping/wrap sequence inline, per spec.md §9's
// "Cooperative I/O fan-out without a single interpreter lock" note that
// each process builds its own handles rather than sharing package-level
// singletons.
func Build(ctx context.Context, service string) (*WorkerContext, func(), error) {
	cfg := config.Load()
	log := logging.NewFromEnv(service)
	m := metrics.New()

	db, err := openPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	cacheStore := cache.NewRedisStore(redisClient, log)
	q := queue.NewRedisQueue(redisClient, m, log)

	wc := &WorkerContext{
		DB:      db,
		Redis:   redisClient,
		Queue:   q,
		Cache:   cacheStore,
		Log:     log,
		Metrics: m,
		Config:  cfg,
	}

	closer := func() {
		db.Close()
		redisClient.Close()
	}
	return wc, closer, nil
}
