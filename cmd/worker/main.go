// Command worker runs one or more of the nine named queue consumers of
// spec.md §6. A single binary serves every queue (selected via --queues)
// since each handler is I/O-bound and cooperative, mirroring the
// teacher's habit of one process type per queue family but scaled here
// onto goroutines instead of separate deployables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"strings"
	"sync"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/config"
	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/runtime"
	"github.com/pautaradar/newsradar/internal/alerts"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/extractor"
	"github.com/pautaradar/newsradar/internal/fetcher"
	"github.com/pautaradar/newsradar/internal/organizer"
	"github.com/pautaradar/newsradar/internal/queue"
	"github.com/pautaradar/newsradar/internal/scoring"
	"github.com/pautaradar/newsradar/internal/source"
	"github.com/pautaradar/newsradar/internal/store/postgres"
	"github.com/pautaradar/newsradar/internal/yield"
)

// dequeueTimeout bounds each BLPop round trip so the consumer loop can
// still observe context cancellation promptly between tasks.
const dequeueTimeout = 5 * time.Second

func defaultQueues() []string {
	return []string{
		queue.FetchFast, queue.FetchRender, queue.FetchDeep,
		queue.ExtractFast, queue.ExtractDeep,
		queue.Organize, queue.Score, queue.Alerts,
	}
}

func main() {
	queuesFlag := flag.String("queues", strings.Join(defaultQueues(), ","),
		"comma-separated list of queues to consume (fetch_fast, fetch_render, fetch_deep, extract_fast, extract_deep, organize, score, alerts; nlp has no consumer, it is a non-goal placeholder)")
	flag.Parse()

	ctx := context.Background()
	wc, closer, err := runtime.Build(ctx, "worker")
	if err != nil {
		panic(err)
	}
	defer closer()

	events := postgres.NewEventStore(wc.DB)
	documents := postgres.NewDocumentStore(wc.DB)
	sources := postgres.NewSourceStore(wc.DB)
	snapshots := postgres.NewSnapshotStore(wc.DB)

	yieldMonitor := yield.New(wc.Redis, wc.Metrics, wc.Log)
	loadYieldConfig(ctx, sources, yieldMonitor, wc.Log)

	fetchSvc := fetcher.New(snapshots, wc.Queue, wc.Cache, wc.Metrics, wc.Log)
	extractSvc := extractor.New(wc.Queue, wc.Metrics, wc.Log)
	org := &organizer.Organizer{
		Docs:    documents,
		Events:  events,
		Yield:   yieldMonitor,
		Score:   wc.Queue,
		Metrics: wc.Metrics,
		Log:     wc.Log,
	}
	scoreSvc := scoring.New(events, wc.Queue, sloFromConfig(wc.Config), wc.Log, wc.Metrics)
	alertSink := alerts.NewRedisSink(wc.Redis, wc.Log)
	alertEval := alerts.New(events, alertSink, wc.Config.AlertCooldownS, wc.Log)

	h := &handlers{
		fetch:    fetchSvc,
		extract:  extractSvc,
		organize: org,
		score:    scoreSvc,
		alert:    alertEval,
		log:      wc.Log,
	}

	var wg sync.WaitGroup
	for _, name := range strings.Split(*queuesFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == queue.NLP {
			wc.Log.WithField("queue", name).Warn("worker: nlp queue has no consumer (non-goal), skipping")
			continue
		}
		wg.Add(1)
		go func(queueName string) {
			defer wg.Done()
			runQueueLoop(ctx, queueName, wc.Queue, h, wc.Log)
		}(name)
	}

	wc.Log.WithField("queues", *queuesFlag).Info("worker: started")
	wg.Wait()
}

func sloFromConfig(cfg config.Config) eventstate.SLOConfig {
	return eventstate.SLOConfig{
		FastPathS:      cfg.SLOFastPathS,
		RenderPathS:    cfg.SLORenderPathS,
		DeepPathS:      cfg.SLODeepPathS,
		QuarantineTTLS: cfg.QuarantineTTLS,
	}
}

// loadYieldConfig configures the yield monitor's per-source window/calendar
// baseline from every active source's stored profile, reusing
// SourceStore.DueProfiles with a far-future cutoff since there is no
// dedicated "all profiles" query.
func loadYieldConfig(ctx context.Context, sources *postgres.SourceStore, y *yield.Monitor, log *logging.Logger) {
	rows, err := sources.DueProfiles(ctx, time.Now().AddDate(10, 0, 0), 100000)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("worker: failed to load source profiles for yield monitor config")
		}
		return
	}
	for _, row := range rows {
		var profile source.Profile
		if jerr := json.Unmarshal(row.Profile, &profile); jerr != nil {
			if log != nil {
				log.WithField("source_id", row.SourceID).WithError(jerr).Warn("worker: failed to decode source profile")
			}
			continue
		}
		y.Configure(row.SourceID, profile.Observability)
	}
}

type handlers struct {
	fetch    *fetcher.Fetcher
	extract  *extractor.Extractor
	organize *organizer.Organizer
	score    *scoring.Service
	alert    *alerts.Evaluator
	log      *logging.Logger
}

// runQueueLoop dequeues and dispatches tasks from one named queue until ctx
// is cancelled. Every handler already owns its own downstream enqueue (the
// fetch/extract/organize stages chain internally), so each case below is a
// thin dequeue-then-call wrapper.
func runQueueLoop(ctx context.Context, queueName string, q *queue.RedisQueue, h *handlers, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		switch queueName {
		case queue.FetchFast, queue.FetchRender, queue.FetchDeep:
			err = handleFetch(ctx, q, queueName, h.fetch)
		case queue.ExtractFast, queue.ExtractDeep:
			err = handleExtract(ctx, q, queueName, h.extract)
		case queue.Organize:
			err = handleOrganize(ctx, q, h.organize)
		case queue.Score:
			err = handleScore(ctx, q, h.score)
		case queue.Alerts:
			err = handleAlert(ctx, q, h.alert)
		default:
			if log != nil {
				log.WithField("queue", queueName).Warn("worker: unknown queue, stopping consumer")
			}
			return
		}
		if err != nil && log != nil {
			log.WithField("queue", queueName).WithError(err).Warn("worker: task handler failed")
		}
	}
}

func handleFetch(ctx context.Context, q *queue.RedisQueue, queueName string, f *fetcher.Fetcher) error {
	task, ok, err := q.DequeueFetch(ctx, queueName, dequeueTimeout)
	if err != nil || !ok {
		return err
	}
	_, err = f.Fetch(ctx, task, time.Now().UTC())
	return err
}

func handleExtract(ctx context.Context, q *queue.RedisQueue, queueName string, e *extractor.Extractor) error {
	task, ok, err := q.DequeueExtract(ctx, queueName, dequeueTimeout)
	if err != nil || !ok {
		return err
	}
	_, err = e.Extract(ctx, task, time.Now().UTC())
	return err
}

func handleOrganize(ctx context.Context, q *queue.RedisQueue, o *organizer.Organizer) error {
	task, ok, err := q.DequeueOrganize(ctx, dequeueTimeout)
	if err != nil || !ok {
		return err
	}
	_, err = o.Organize(ctx, task.Item, time.Now().UTC())
	return err
}

func handleScore(ctx context.Context, q *queue.RedisQueue, s *scoring.Service) error {
	task, ok, err := q.DequeueScore(ctx, dequeueTimeout)
	if err != nil || !ok {
		return err
	}
	_, err = s.RunScoring(ctx, task.EventID, time.Now().UTC())
	return err
}

func handleAlert(ctx context.Context, q *queue.RedisQueue, e *alerts.Evaluator) error {
	task, ok, err := q.DequeueAlert(ctx, dequeueTimeout)
	if err != nil || !ok {
		return err
	}
	_, err = e.Evaluate(ctx, task.EventID, task.Reason)
	return err
}
