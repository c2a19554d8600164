// Package pushstream implements the live event feed of spec.md §4.11: a
// cursor-polling loop over three record kinds (EVENT_UPSERT,
// EVENT_STATE_CHANGED, EVENT_MERGED) emitted as framed messages with an
// idle heartbeat. Cursors are per connection and never persisted; each Run
// call starts from the cursors its caller passes. httpapi's stream handler
// passes the connection time for every kind and reads no cursor from the
// client, so a client that reconnects does not resume where it left off:
// rows written while it was disconnected are not delivered.
package pushstream

import (
	"context"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// Record kind labels (spec.md §4.11), carried on Frame.Kind.
const (
	KindEventUpsert  = "EVENT_UPSERT"
	KindStateChanged = "EVENT_STATE_CHANGED"
	KindMerged       = "EVENT_MERGED"
)

// DefaultPollInterval is how often the loop re-queries each kind's table.
const DefaultPollInterval = 2 * time.Second

// DefaultHeartbeatInterval bounds how long a connection can go silent
// before a heartbeat frame is emitted, per spec.md §4.11.
const DefaultHeartbeatInterval = 15 * time.Second

// DefaultPageLimit bounds each poll's page size per kind.
const DefaultPageLimit = 200

// EventStore is the narrow slice of postgres.EventStore the streamer
// needs, kept narrow so it can be faked in tests.
type EventStore interface {
	RecentlyUpdatedEvents(ctx context.Context, sinceUpdatedAt time.Time, sinceID int64, limit int) ([]postgres.Event, error)
	RecentStateChanges(ctx context.Context, sinceEnteredAt time.Time, sinceEventID int64, limit int) ([]postgres.EventState, error)
	RecentMergeAudits(ctx context.Context, sinceCreatedAt time.Time, sinceID int64, limit int) ([]postgres.MergeAudit, error)
}

// Cursor is a (timestamp, id) pair; the store queries compare (time, id)
// tuples with a strict greater-than, so a row equal to the cursor is never
// re-delivered.
type Cursor struct {
	Time time.Time
	ID   int64
}

// Cursors is one connection's position in each of the three kinds,
// supplied by the caller (httpapi's stream handler) on each Run call and
// never held past it.
type Cursors struct {
	EventUpsert  Cursor
	StateChanged Cursor
	Merged       Cursor
}

// Frame is one message the Writer emits; exactly one of Event/State/Merge
// is set, matching Kind.
type Frame struct {
	Kind   string
	Event  *postgres.Event
	State  *postgres.EventState
	Merge  *postgres.MergeAudit
	Cursor Cursor
}

// Writer delivers frames and heartbeats to the connected client. httpapi's
// SSE handler is the only real implementation; a Writer returning an error
// ends the Run loop (the client disconnected or the handler failed to
// flush).
type Writer interface {
	Write(ctx context.Context, f Frame) error
	Heartbeat(ctx context.Context) error
}

// Streamer runs the cursor-polling loop of spec.md §4.11.
type Streamer struct {
	Events            EventStore
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	PageLimit         int
	Log               *logging.Logger
}

func New(events EventStore) *Streamer {
	return &Streamer{
		Events:            events,
		PollInterval:      DefaultPollInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
		PageLimit:         DefaultPageLimit,
	}
}

// Run blocks, polling until ctx is cancelled or w returns an error.
func (s *Streamer) Run(ctx context.Context, cursors Cursors, w Writer) error {
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	heartbeat := s.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	limit := s.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emitted, err := s.pollOnce(ctx, &cursors, limit, w)
			if err != nil {
				return err
			}
			if emitted > 0 {
				lastActivity = time.Now()
				continue
			}
			if time.Since(lastActivity) >= heartbeat {
				if err := w.Heartbeat(ctx); err != nil {
					return err
				}
				lastActivity = time.Now()
			}
		}
	}
}

func (s *Streamer) pollOnce(ctx context.Context, cursors *Cursors, limit int, w Writer) (int, error) {
	emitted := 0

	events, err := s.Events.RecentlyUpdatedEvents(ctx, cursors.EventUpsert.Time, cursors.EventUpsert.ID, limit)
	if err != nil {
		return emitted, err
	}
	for i := range events {
		ev := events[i]
		cur := Cursor{Time: ev.UpdatedAt, ID: ev.ID}
		if err := w.Write(ctx, Frame{Kind: KindEventUpsert, Event: &ev, Cursor: cur}); err != nil {
			return emitted, err
		}
		cursors.EventUpsert = cur
		emitted++
	}

	states, err := s.Events.RecentStateChanges(ctx, cursors.StateChanged.Time, cursors.StateChanged.ID, limit)
	if err != nil {
		return emitted, err
	}
	for i := range states {
		st := states[i]
		cur := Cursor{Time: st.EnteredAt, ID: st.EventID}
		if err := w.Write(ctx, Frame{Kind: KindStateChanged, State: &st, Cursor: cur}); err != nil {
			return emitted, err
		}
		cursors.StateChanged = cur
		emitted++
	}

	merges, err := s.Events.RecentMergeAudits(ctx, cursors.Merged.Time, cursors.Merged.ID, limit)
	if err != nil {
		return emitted, err
	}
	for i := range merges {
		m := merges[i]
		cur := Cursor{Time: m.CreatedAt, ID: m.ID}
		if err := w.Write(ctx, Frame{Kind: KindMerged, Merge: &m, Cursor: cur}); err != nil {
			return emitted, err
		}
		cursors.Merged = cur
		emitted++
	}

	return emitted, nil
}
