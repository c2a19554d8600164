// Package queue implements the nine named task queues of spec.md §6 on top
// of Redis lists: RPush to enqueue, BLPop to dequeue. Grounded on
// infrastructure/cache.RedisStore's client-wrapping convention (a thin
// *redis.Client wrapper with its own small interface and a logger for
// failures), generalized from a counter cache into a durable work queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/extractor"
	"github.com/pautaradar/newsradar/internal/fetcher"
	"github.com/pautaradar/newsradar/internal/source"
)

// Queue names (spec.md §6).
const (
	FetchFast   = "fetch_fast"
	FetchRender = "fetch_render"
	FetchDeep   = "fetch_deep"
	ExtractFast = "extract_fast"
	ExtractDeep = "extract_deep"
	Organize    = "organize"
	Score       = "score"
	Alerts      = "alerts"
	NLP         = "nlp"
)

const keyPrefix = "newsradar:queue:"

func keyFor(queue string) string { return keyPrefix + queue }

// FetchQueueForPool maps a source.Pool onto its scheduler-emitted fetch
// queue (spec.md §4.1's strategy/pool pairing, surfaced as three queues).
func FetchQueueForPool(pool source.Pool) string {
	switch pool {
	case source.PoolHeavyRender:
		return FetchRender
	case source.PoolDeepExtract:
		return FetchDeep
	default:
		return FetchFast
	}
}

// ScoreTask is the payload of the score queue (spec.md §6:
// "score.run_scoring(event_id)").
type ScoreTask struct {
	EventID int64 `json:"event_id"`
}

// AlertTask is the payload of the alerts queue (spec.md §4.11).
type AlertTask struct {
	EventID int64  `json:"event_id"`
	Reason  string `json:"reason"`
}

// RedisQueue implements the fetcher/extractor/organizer enqueuer interfaces
// plus the symmetric dequeue side consumed by the worker entry points.
type RedisQueue struct {
	client  *redis.Client
	metrics *metrics.Metrics
	log     *logging.Logger
}

func NewRedisQueue(client *redis.Client, m *metrics.Metrics, log *logging.Logger) *RedisQueue {
	return &RedisQueue{client: client, metrics: m, log: log}
}

func (q *RedisQueue) push(ctx context.Context, queueName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal %s payload: %w", queueName, err)
	}
	if err := q.client.RPush(ctx, keyFor(queueName), data).Err(); err != nil {
		return fmt.Errorf("queue: rpush %s: %w", queueName, err)
	}
	q.observeDepth(ctx, queueName)
	return nil
}

func (q *RedisQueue) observeDepth(ctx context.Context, queueName string) {
	if q.metrics == nil {
		return
	}
	n, err := q.client.LLen(ctx, keyFor(queueName)).Result()
	if err != nil {
		if q.log != nil {
			q.log.WithContext(ctx).WithField("queue", queueName).WithError(err).
				Warn("queue: failed to read depth for metrics")
		}
		return
	}
	q.metrics.QueueDepth.WithLabelValues(queueName).Set(float64(n))
}

func (q *RedisQueue) popRaw(ctx context.Context, queueName string, timeout time.Duration) ([]byte, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, keyFor(queueName)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("queue: blpop %s: %w", queueName, err)
	}
	if len(res) < 2 {
		return nil, false, nil
	}
	q.observeDepth(ctx, queueName)
	return []byte(res[1]), true, nil
}

// EnqueueFetch enqueues a scheduler-emitted fetch task onto the queue
// matching its source's pool.
func (q *RedisQueue) EnqueueFetch(ctx context.Context, queueName string, task fetcher.Task) error {
	return q.push(ctx, queueName, task)
}

// DequeueFetch blocks up to timeout for the next fetch task on queueName.
func (q *RedisQueue) DequeueFetch(ctx context.Context, queueName string, timeout time.Duration) (fetcher.Task, bool, error) {
	raw, ok, err := q.popRaw(ctx, queueName, timeout)
	if err != nil || !ok {
		return fetcher.Task{}, ok, err
	}
	var t fetcher.Task
	if jerr := json.Unmarshal(raw, &t); jerr != nil {
		return fetcher.Task{}, false, fmt.Errorf("queue: decode fetch task: %w", jerr)
	}
	return t, true, nil
}

// EnqueueExtract implements fetcher.ExtractEnqueuer, routing onto
// task.Pool (already resolved to extract_fast/extract_deep by the fetcher).
func (q *RedisQueue) EnqueueExtract(ctx context.Context, task fetcher.ExtractTask) error {
	return q.push(ctx, task.Pool, task)
}

// DequeueExtract blocks up to timeout for the next extract task on queueName.
func (q *RedisQueue) DequeueExtract(ctx context.Context, queueName string, timeout time.Duration) (fetcher.ExtractTask, bool, error) {
	raw, ok, err := q.popRaw(ctx, queueName, timeout)
	if err != nil || !ok {
		return fetcher.ExtractTask{}, ok, err
	}
	var t fetcher.ExtractTask
	if jerr := json.Unmarshal(raw, &t); jerr != nil {
		return fetcher.ExtractTask{}, false, fmt.Errorf("queue: decode extract task: %w", jerr)
	}
	return t, true, nil
}

// EnqueueOrganize implements extractor.OrganizeEnqueuer.
func (q *RedisQueue) EnqueueOrganize(ctx context.Context, task extractor.OrganizeTask) error {
	return q.push(ctx, Organize, task)
}

// DequeueOrganize blocks up to timeout for the next organize task.
func (q *RedisQueue) DequeueOrganize(ctx context.Context, timeout time.Duration) (extractor.OrganizeTask, bool, error) {
	raw, ok, err := q.popRaw(ctx, Organize, timeout)
	if err != nil || !ok {
		return extractor.OrganizeTask{}, ok, err
	}
	var t extractor.OrganizeTask
	if jerr := json.Unmarshal(raw, &t); jerr != nil {
		return extractor.OrganizeTask{}, false, fmt.Errorf("queue: decode organize task: %w", jerr)
	}
	return t, true, nil
}

// EnqueueScore implements organizer.ScoreEnqueuer (spec.md §4.7 step 7).
func (q *RedisQueue) EnqueueScore(ctx context.Context, eventID int64) error {
	return q.push(ctx, Score, ScoreTask{EventID: eventID})
}

// DequeueScore blocks up to timeout for the next score task.
func (q *RedisQueue) DequeueScore(ctx context.Context, timeout time.Duration) (ScoreTask, bool, error) {
	raw, ok, err := q.popRaw(ctx, Score, timeout)
	if err != nil || !ok {
		return ScoreTask{}, ok, err
	}
	var t ScoreTask
	if jerr := json.Unmarshal(raw, &t); jerr != nil {
		return ScoreTask{}, false, fmt.Errorf("queue: decode score task: %w", jerr)
	}
	return t, true, nil
}

// EnqueueAlert pushes an alert-evaluation task (spec.md §4.11).
func (q *RedisQueue) EnqueueAlert(ctx context.Context, eventID int64, reason string) error {
	return q.push(ctx, Alerts, AlertTask{EventID: eventID, Reason: reason})
}

// DequeueAlert blocks up to timeout for the next alert task.
func (q *RedisQueue) DequeueAlert(ctx context.Context, timeout time.Duration) (AlertTask, bool, error) {
	raw, ok, err := q.popRaw(ctx, Alerts, timeout)
	if err != nil || !ok {
		return AlertTask{}, ok, err
	}
	var t AlertTask
	if jerr := json.Unmarshal(raw, &t); jerr != nil {
		return AlertTask{}, false, fmt.Errorf("queue: decode alert task: %w", jerr)
	}
	return t, true, nil
}

// Depth reports a queue's current length, for the queue_metrics probe task
// (spec.md §6: "queue_metrics.run_queue_metrics_probe()").
func (q *RedisQueue) Depth(ctx context.Context, queueName string) (int64, error) {
	n, err := q.client.LLen(ctx, keyFor(queueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: llen %s: %w", queueName, err)
	}
	return n, nil
}

// AllQueues lists every named queue, for the probe task to iterate over.
func AllQueues() []string {
	return []string{FetchFast, FetchRender, FetchDeep, ExtractFast, ExtractDeep, Organize, Score, Alerts, NLP}
}
