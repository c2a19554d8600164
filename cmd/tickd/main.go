// Command tickd runs the pipeline's periodic control-plane ticks: the
// scheduler, event-state maintenance, canonicalization, and the queue-depth
// metrics probe, each on its own ticker.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/runtime"
	"github.com/pautaradar/newsradar/internal/canonical"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/queue"
	"github.com/pautaradar/newsradar/internal/scheduler"
	"github.com/pautaradar/newsradar/internal/source"
	"github.com/pautaradar/newsradar/internal/store/postgres"
	"github.com/pautaradar/newsradar/internal/yield"
)

// maintenanceBatchLimit bounds how many expired states one maintenance
// tick transitions, mirroring scheduler.DefaultBatchLimit's backlog-drains-
// over-several-ticks shape.
const maintenanceBatchLimit = 500

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wc, closer, err := runtime.Build(ctx, "tickd")
	if err != nil {
		panic(err)
	}
	defer closer()

	events := postgres.NewEventStore(wc.DB)
	sources := postgres.NewSourceStore(wc.DB)
	yieldMonitor := yield.New(wc.Redis, wc.Metrics, wc.Log)

	slo := eventstate.SLOConfig{
		FastPathS:      wc.Config.SLOFastPathS,
		RenderPathS:    wc.Config.SLORenderPathS,
		DeepPathS:      wc.Config.SLODeepPathS,
		QuarantineTTLS: wc.Config.QuarantineTTLS,
	}

	sched := scheduler.New(sources, wc.Queue, wc.Log)
	sched.Tick = wc.Config.SchedulerTick

	canon := canonical.New(events, wc.Queue, wc.Queue, wc.Log)
	canon.Tick = wc.Config.CanonicalizerTick

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			wc.Log.WithError(err).Warn("tickd: scheduler loop exited")
		}
	}()

	go func() {
		defer wg.Done()
		if err := canon.Run(ctx); err != nil && ctx.Err() == nil {
			wc.Log.WithError(err).Warn("tickd: canonicalizer loop exited")
		}
	}()

	go func() {
		defer wg.Done()
		runMaintenanceLoop(ctx, events, slo, wc)
	}()

	go func() {
		defer wg.Done()
		runStarvationCheckLoop(ctx, sources, yieldMonitor, wc)
	}()

	go runQueueProbeLoop(ctx, wc)

	wc.Log.Info("tickd: started")
	<-ctx.Done()
	wc.Log.Info("tickd: shutting down")
	wg.Wait()
}

// runMaintenanceLoop drives eventstate.RunMaintenance on its own ticker,
// the maintenance tick spec.md §4.9 names (≈30s).
func runMaintenanceLoop(ctx context.Context, events *postgres.EventStore, slo eventstate.SLOConfig, wc *runtime.WorkerContext) {
	tick := wc.Config.MaintenanceTick
	if tick <= 0 {
		tick = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := eventstate.RunMaintenance(ctx, events, slo, wc.Log, wc.Metrics, maintenanceBatchLimit, now)
			if err != nil {
				wc.Log.WithError(err).Warn("tickd: maintenance tick failed")
				continue
			}
			if n > 0 {
				wc.Log.WithField("transitioned", n).Info("tickd: maintenance tick applied transitions")
			}
		}
	}
}

// runStarvationCheckLoop periodically re-configures the yield monitor from
// the latest stored source profiles and checks every active source for
// DATA_STARVATION (spec.md §4.12), the periodic half of a monitor the
// fetch-path workers otherwise only update, never read back.
func runStarvationCheckLoop(ctx context.Context, sources *postgres.SourceStore, y *yield.Monitor, wc *runtime.WorkerContext) {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows, err := sources.DueProfiles(ctx, time.Now().AddDate(10, 0, 0), 100000)
			if err != nil {
				wc.Log.WithError(err).Warn("tickd: failed to load source profiles for starvation check")
				continue
			}
			for _, row := range rows {
				var profile source.Profile
				if jerr := json.Unmarshal(row.Profile, &profile); jerr != nil {
					continue
				}
				y.Configure(row.SourceID, profile.Observability)
				if y.CheckStarvation(row.SourceID) {
					wc.Metrics.StarvationIncidentsTotal.WithLabelValues(row.SourceID).Inc()
					wc.Log.WithField("source_id", row.SourceID).Warn("tickd: DATA_STARVATION detected")
				}
			}
		}
	}
}

// runQueueProbeLoop implements spec.md §6's
// "queue_metrics.run_queue_metrics_probe()" task as a ticker instead of a
// Celery beat entry, publishing each named queue's depth to
// infrastructure/metrics.Metrics.QueueDepth.
func runQueueProbeLoop(ctx context.Context, wc *runtime.WorkerContext) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range queue.AllQueues() {
				depth, err := wc.Queue.Depth(ctx, name)
				if err != nil {
					wc.Log.WithField("queue", name).WithError(err).Warn("tickd: queue depth probe failed")
					continue
				}
				wc.Metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
			}
		}
	}
}
