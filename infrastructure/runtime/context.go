// Package runtime provides the WorkerContext every process builds at
// startup instead of relying on package-level singletons (spec.md §9,
// "Cooperative I/O fan-out without a single interpreter lock").
package runtime

import (
	"database/sql"

	"github.com/go-redis/redis/v8"

	"github.com/pautaradar/newsradar/infrastructure/cache"
	"github.com/pautaradar/newsradar/infrastructure/config"
	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/queue"
)

// WorkerContext carries the shared handles a task or HTTP handler needs.
// It is constructed once per process and threaded explicitly; nothing here
// is a package-level var. Redis is exposed directly alongside Cache/Queue
// since a handful of collaborators (internal/yield, internal/alerts'
// RedisSink) need the client itself rather than either wrapper.
type WorkerContext struct {
	DB      *sql.DB
	Redis   *redis.Client
	Queue   *queue.RedisQueue
	Cache   cache.Store
	Log     *logging.Logger
	Metrics *metrics.Metrics
	Config  config.Config
}
