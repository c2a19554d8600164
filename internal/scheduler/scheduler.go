// Package scheduler implements the spec.md §4.2 tick loop: on a fixed
// interval it reads due source profiles, emits one fetch task per profile
// routed to the pool its strategy is pinned to, and advances the profile's
// next due time by its cadence. Grounded on the teacher's own cadence of
// polling a store for "what's due now" (internal/store/postgres's
// DueProfiles/MarkScheduled pair, already built against this package's
// needs) rather than handing an entire cron.Cron instance the job loop the
// way _examples/other_examples' campaign-orchestrator.go does — that file's
// scheduleJob hands cron.Cron a cron.Job and lets the library's own
// goroutine fire Run(); here the due-decision has to also cover plain
// interval_seconds cadences and a materialized next_due_at column, so the
// tick loop polls instead. cron.ParseStandard/Schedule.Next is the same
// robfig/cron/v3 call internal/source.Profile.Validate already uses to
// validate a cron expression, reused here to compute its next occurrence.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/internal/fetcher"
	"github.com/pautaradar/newsradar/internal/queue"
	"github.com/pautaradar/newsradar/internal/source"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// DefaultTick is the scheduler's polling interval (spec.md §4.2: "≈60s").
const DefaultTick = 60 * time.Second

// DefaultBatchLimit bounds how many due profiles one tick claims, so a
// backlog after downtime drains over several ticks instead of one burst.
const DefaultBatchLimit = 500

// ProfileStore is the narrow slice of postgres.SourceStore the scheduler
// needs, matching its real method set exactly.
type ProfileStore interface {
	DueProfiles(ctx context.Context, now time.Time, limit int) ([]postgres.SourceProfileRow, error)
	MarkScheduled(ctx context.Context, sourceID string, nextDueAt time.Time) error
}

// FetchEnqueuer hands a fetch task to the durable queue, routed by the
// pool-specific queue name (internal/queue.FetchQueueForPool).
type FetchEnqueuer interface {
	EnqueueFetch(ctx context.Context, queueName string, task fetcher.Task) error
}

// Scheduler runs the spec.md §4.2 tick loop. It owns no per-source state:
// every decision reads ProfileStore fresh each tick.
type Scheduler struct {
	Store      ProfileStore
	Queue      FetchEnqueuer
	Log        *logging.Logger
	Tick       time.Duration
	BatchLimit int
}

func New(store ProfileStore, q FetchEnqueuer, log *logging.Logger) *Scheduler {
	return &Scheduler{
		Store:      store,
		Queue:      q,
		Log:        log,
		Tick:       DefaultTick,
		BatchLimit: DefaultBatchLimit,
	}
}

// Run blocks, ticking until ctx is cancelled. Each tick's errors are logged
// and do not stop the loop — a transient store/queue failure self-heals on
// the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	tick := s.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n, err := s.RunOnce(ctx, now); err != nil {
				if s.Log != nil {
					s.Log.WithContext(ctx).WithError(err).Warn("scheduler: tick failed")
				}
			} else if n > 0 && s.Log != nil {
				s.Log.WithContext(ctx).WithField("count", n).Info("scheduler: emitted fetch tasks")
			}
		}
	}
}

// RunOnce claims every currently-due profile and emits one fetch task per
// profile. It returns the number of tasks emitted. A decode or enqueue
// failure for one profile is logged and skipped; it stays due and is
// retried on the next tick since its next_due_at is left unchanged.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	limit := s.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	rows, err := s.Store.DueProfiles(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load due profiles: %w", err)
	}

	emitted := 0
	for _, row := range rows {
		if err := s.dispatch(ctx, row, now); err != nil {
			if s.Log != nil {
				s.Log.WithContext(ctx).WithField("source_id", row.SourceID).WithError(err).
					Warn("scheduler: failed to schedule due profile")
			}
			continue
		}
		emitted++
	}
	return emitted, nil
}

func (s *Scheduler) dispatch(ctx context.Context, row postgres.SourceProfileRow, now time.Time) error {
	var profile source.Profile
	if err := json.Unmarshal(row.Profile, &profile); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}

	task := fetcher.Task{
		SourceID:   row.SourceID,
		Tier:       row.Tier,
		IsOfficial: row.Official,
		Profile:    profile,
	}

	queueName := queue.FetchQueueForPool(profile.Pool)
	if err := s.Queue.EnqueueFetch(ctx, queueName, task); err != nil {
		return fmt.Errorf("enqueue fetch task: %w", err)
	}

	next, err := NextDueAt(profile.Cadence, now)
	if err != nil {
		return fmt.Errorf("compute next due time: %w", err)
	}
	if err := s.Store.MarkScheduled(ctx, row.SourceID, next); err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	return nil
}

// NextDueAt computes a cadence's next occurrence after reference (spec.md
// §4.2/§3: exactly one of IntervalSeconds or Cron is set, enforced by
// source.Profile.Validate before a profile ever reaches the scheduler).
func NextDueAt(c source.Cadence, reference time.Time) (time.Time, error) {
	if c.IntervalSeconds > 0 {
		return reference.Add(time.Duration(c.IntervalSeconds) * time.Second), nil
	}
	schedule, err := cron.ParseStandard(c.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", c.Cron, err)
	}
	return schedule.Next(reference), nil
}
