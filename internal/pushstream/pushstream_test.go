package pushstream

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeStore struct {
	events []postgres.Event
	states []postgres.EventState
	merges []postgres.MergeAudit
}

func (f *fakeStore) RecentlyUpdatedEvents(ctx context.Context, since time.Time, sinceID int64, limit int) ([]postgres.Event, error) {
	var out []postgres.Event
	for _, ev := range f.events {
		if ev.UpdatedAt.After(since) || (ev.UpdatedAt.Equal(since) && ev.ID > sinceID) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentStateChanges(ctx context.Context, since time.Time, sinceEventID int64, limit int) ([]postgres.EventState, error) {
	var out []postgres.EventState
	for _, st := range f.states {
		if st.EnteredAt.After(since) || (st.EnteredAt.Equal(since) && st.EventID > sinceEventID) {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentMergeAudits(ctx context.Context, since time.Time, sinceID int64, limit int) ([]postgres.MergeAudit, error) {
	var out []postgres.MergeAudit
	for _, m := range f.merges {
		if m.CreatedAt.After(since) || (m.CreatedAt.Equal(since) && m.ID > sinceID) {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingWriter struct {
	frames     []Frame
	heartbeats int
}

func (w *recordingWriter) Write(ctx context.Context, f Frame) error {
	w.frames = append(w.frames, f)
	return nil
}

func (w *recordingWriter) Heartbeat(ctx context.Context) error {
	w.heartbeats++
	return nil
}

func TestPollOnce_EmitsEachKindAndAdvancesItsCursor(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{
		events: []postgres.Event{{ID: 1, UpdatedAt: now}},
		states: []postgres.EventState{{EventID: 2, State: "HOT", EnteredAt: now}},
		merges: []postgres.MergeAudit{{ID: 3, SurvivingEventID: 1, AbsorbedEventID: 2, CreatedAt: now}},
	}
	s := New(store)
	w := &recordingWriter{}
	cursors := Cursors{}

	emitted, err := s.pollOnce(context.Background(), &cursors, 10, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitted != 3 {
		t.Fatalf("expected 3 frames emitted, got %d", emitted)
	}
	if cursors.EventUpsert.ID != 1 || cursors.StateChanged.ID != 2 || cursors.Merged.ID != 3 {
		t.Fatalf("expected every kind's cursor to advance, got %+v", cursors)
	}

	emitted, err = s.pollOnce(context.Background(), &cursors, 10, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitted != 0 {
		t.Fatalf("expected a second poll with no new rows to emit nothing, got %d", emitted)
	}
}

func TestRun_EmitsHeartbeatWhenIdle(t *testing.T) {
	store := &fakeStore{}
	s := New(store)
	s.PollInterval = 5 * time.Millisecond
	s.HeartbeatInterval = 10 * time.Millisecond
	w := &recordingWriter{}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, Cursors{}, w)
	if err == nil {
		t.Fatalf("expected Run to return when its context is cancelled")
	}
	if w.heartbeats == 0 {
		t.Fatalf("expected at least one heartbeat while idle")
	}
}

func TestRun_StopsWhenWriterErrors(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStore{events: []postgres.Event{{ID: 1, UpdatedAt: now}}}
	s := New(store)
	s.PollInterval = 5 * time.Millisecond

	w := &erroringWriter{}
	err := s.Run(context.Background(), Cursors{}, w)
	if err == nil {
		t.Fatalf("expected Run to propagate the writer's error")
	}
}

type erroringWriter struct{}

func (erroringWriter) Write(ctx context.Context, f Frame) error { return errWriter }
func (erroringWriter) Heartbeat(ctx context.Context) error      { return errWriter }

var errWriter = errStub("stream closed")

type errStub string

func (e errStub) Error() string { return string(e) }
