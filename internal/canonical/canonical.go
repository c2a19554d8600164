// Package canonical implements the strong-anchor canonicalization pass of
// spec.md §4.10: a periodic job that groups events sharing a strong
// evidence anchor (CNPJ, CNJ, PL, SEI, TCU) and merges every later event in
// a group into its earliest. Grounded on
// original_source/backend/app/workers/canonicalize.py's run_canonicalize:
// group candidate (event, anchor) rows by (anchor_type, anchor_value), pick
// the earliest-first_seen_at event per group as the survivor, merge the
// rest into it, then fan out an EVENT_MERGED alert per absorbed event and
// one rescoring task per survivor that actually absorbed something.
package canonical

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// DefaultTick is the canonicalizer's polling interval (spec.md §4.10).
const DefaultTick = 120 * time.Second

// LookbackWindow restricts grouping to recently-seen events, matching
// canonicalize.py's "first_seen_at >= now - 1 day".
const LookbackWindow = 24 * time.Hour

// StrongAnchorKinds is the canonicalizer's anchor set (spec.md §4.10),
// wider than internal/organizer's cross-document linkage set by TCU.
var StrongAnchorKinds = []string{"CNPJ", "CNJ", "PL", "SEI", "TCU"}

// EventStore is the narrow slice of postgres.EventStore the canonicalizer
// needs, matching its real method set exactly.
type EventStore interface {
	StrongAnchorCandidates(ctx context.Context, since time.Time, kinds []string) ([]postgres.AnchorCandidate, error)
	MergeEvents(ctx context.Context, survivingID, absorbedID int64, reason, idempotencyKey string) (postgres.MergeResult, error)
}

// AlertEnqueuer hands an alert-evaluation task to the queue. Nil is valid,
// the same accommodation internal/organizer makes for its ScoreEnqueuer.
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, eventID int64, reason string) error
}

// ScoreEnqueuer hands a rescoring task to the queue. Nil is valid.
type ScoreEnqueuer interface {
	EnqueueScore(ctx context.Context, eventID int64) error
}

// Canonicalizer runs the spec.md §4.10 grouping/merge pass.
type Canonicalizer struct {
	Events EventStore
	Alerts AlertEnqueuer
	Score  ScoreEnqueuer
	Log    *logging.Logger
	Tick   time.Duration
}

func New(events EventStore, alerts AlertEnqueuer, score ScoreEnqueuer, log *logging.Logger) *Canonicalizer {
	return &Canonicalizer{Events: events, Alerts: alerts, Score: score, Log: log, Tick: DefaultTick}
}

// Result summarizes one RunOnce call.
type Result struct {
	GroupsConsidered int
	MergedCount      int
}

// Run blocks, ticking until ctx is cancelled.
func (c *Canonicalizer) Run(ctx context.Context) error {
	tick := c.Tick
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
			if res, err := c.RunOnce(ctx, now); err != nil {
				if c.Log != nil {
					c.Log.WithContext(ctx).WithError(err).Warn("canonicalize: tick failed")
				}
			} else if res.MergedCount > 0 && c.Log != nil {
				c.Log.WithContext(ctx).WithField("merged", res.MergedCount).Info("canonicalize: merged events")
			}
		}
	}
}

// RunOnce performs a single canonicalization pass. Merges are idempotent:
// MergeEvents's idempotency_key (canon:<survivor>:<absorbed>) makes a
// re-merge of the same pair within the same tick, or across ticks once the
// loser is tombstoned out of the candidate set, a no-op rather than a
// double-count.
func (c *Canonicalizer) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	since := now.Add(-LookbackWindow)
	candidates, err := c.Events.StrongAnchorCandidates(ctx, since, StrongAnchorKinds)
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize: load candidates: %w", err)
	}

	groups := groupByAnchor(candidates)

	var merged int
	rescored := map[int64]bool{}
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if !members[i].FirstSeenAt.Equal(members[j].FirstSeenAt) {
				return members[i].FirstSeenAt.Before(members[j].FirstSeenAt)
			}
			return members[i].EventID < members[j].EventID
		})

		survivorID := members[0].EventID
		absorbedSeen := map[int64]bool{survivorID: true}
		for _, m := range members[1:] {
			if absorbedSeen[m.EventID] {
				continue
			}
			absorbedSeen[m.EventID] = true

			idempotencyKey := fmt.Sprintf("canon:%d:%d", survivorID, m.EventID)
			res, err := c.Events.MergeEvents(ctx, survivorID, m.EventID, eventstate.ReasonMergedCanonicalizer, idempotencyKey)
			if err != nil {
				if c.Log != nil {
					c.Log.WithContext(ctx).WithField("anchor", key.String()).WithError(err).
						Warn("canonicalize: merge failed")
				}
				continue
			}
			if !res.Merged {
				continue
			}
			merged++
			rescored[survivorID] = true

			if c.Alerts != nil {
				if err := c.Alerts.EnqueueAlert(ctx, m.EventID, "EVENT_MERGED"); err != nil && c.Log != nil {
					c.Log.WithContext(ctx).WithField("event_id", m.EventID).WithError(err).
						Warn("canonicalize: failed to enqueue merge alert")
				}
			}
		}
	}

	if c.Score != nil {
		ids := make([]int64, 0, len(rescored))
		for id := range rescored {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if err := c.Score.EnqueueScore(ctx, id); err != nil && c.Log != nil {
				c.Log.WithContext(ctx).WithField("event_id", id).WithError(err).
					Warn("canonicalize: failed to enqueue rescoring")
			}
		}
	}

	return Result{GroupsConsidered: len(groups), MergedCount: merged}, nil
}

type anchorKey struct {
	kind  string
	value string
}

func (k anchorKey) String() string { return k.kind + ":" + k.value }

func groupByAnchor(candidates []postgres.AnchorCandidate) map[anchorKey][]postgres.AnchorCandidate {
	groups := make(map[anchorKey][]postgres.AnchorCandidate)
	seenPerGroup := make(map[anchorKey]map[int64]time.Time)

	for _, c := range candidates {
		key := anchorKey{kind: c.AnchorKind, value: c.AnchorValue}
		if seenPerGroup[key] == nil {
			seenPerGroup[key] = make(map[int64]time.Time)
		}
		if existing, ok := seenPerGroup[key][c.EventID]; !ok || c.FirstSeenAt.Before(existing) {
			seenPerGroup[key][c.EventID] = c.FirstSeenAt
		}
	}

	for key, byEvent := range seenPerGroup {
		for eventID, firstSeen := range byEvent {
			groups[key] = append(groups[key], postgres.AnchorCandidate{
				EventID:     eventID,
				FirstSeenAt: firstSeen,
				AnchorKind:  key.kind,
				AnchorValue: key.value,
			})
		}
	}
	return groups
}
