package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/scoring"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeEvents struct {
	events   map[int64]postgres.Event
	scores   map[int64]map[string]postgres.EventScore
	lastSent map[string]time.Time
	recorded []string
	getErr   error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		events:   make(map[int64]postgres.Event),
		scores:   make(map[int64]map[string]postgres.EventScore),
		lastSent: make(map[string]time.Time),
	}
}

func (f *fakeEvents) GetEvent(ctx context.Context, id int64) (postgres.Event, error) {
	if f.getErr != nil {
		return postgres.Event{}, f.getErr
	}
	ev, ok := f.events[id]
	if !ok {
		return postgres.Event{}, postgres.ErrNotFound
	}
	return ev, nil
}

func (f *fakeEvents) LatestScore(ctx context.Context, eventID int64, kind string) (postgres.EventScore, error) {
	byKind, ok := f.scores[eventID]
	if !ok {
		return postgres.EventScore{}, postgres.ErrNotFound
	}
	sc, ok := byKind[kind]
	if !ok {
		return postgres.EventScore{}, postgres.ErrNotFound
	}
	return sc, nil
}

func cooldownKey(eventID int64, alertKey string) string {
	return alertKey
}

func (f *fakeEvents) LastAlertSent(ctx context.Context, eventID int64, alertKey string) (time.Time, bool, error) {
	t, ok := f.lastSent[cooldownKey(eventID, alertKey)]
	return t, ok, nil
}

func (f *fakeEvents) RecordAlertSent(ctx context.Context, eventID int64, alertKey string, sentAt time.Time) error {
	f.lastSent[cooldownKey(eventID, alertKey)] = sentAt
	f.recorded = append(f.recorded, alertKey)
	return nil
}

type fakeSink struct {
	sent []Alert
}

func (s *fakeSink) Send(ctx context.Context, a Alert) error {
	s.sent = append(s.sent, a)
	return nil
}

func TestEvaluate_SendsAndRecordsOnFirstAlert(t *testing.T) {
	events := newFakeEvents()
	events.events[1] = postgres.Event{ID: 1}
	events.scores[1] = map[string]postgres.EventScore{
		scoring.KindPlantao: {Score: 72, Reasons: []string{"PLANTAO_VELOCITY_SPIKE"}},
	}
	sink := &fakeSink{}
	e := New(events, sink, time.Minute, nil)

	sent, err := e.Evaluate(context.Background(), 1, "SCORE_HOT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatalf("expected the first alert for an event to be sent")
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected one dispatched alert, got %d", len(sink.sent))
	}
	if sink.sent[0].PlantaoBand != 14 {
		t.Fatalf("expected score band 14 (72//5), got %d", sink.sent[0].PlantaoBand)
	}
}

func TestEvaluate_SuppressedWithinCooldownForSameKey(t *testing.T) {
	events := newFakeEvents()
	events.events[1] = postgres.Event{ID: 1}
	events.scores[1] = map[string]postgres.EventScore{
		scoring.KindPlantao: {Score: 72, Reasons: []string{"PLANTAO_VELOCITY_SPIKE"}},
	}
	sink := &fakeSink{}
	e := New(events, sink, time.Hour, nil)

	if _, err := e.Evaluate(context.Background(), 1, "SCORE_HOT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent, err := e.Evaluate(context.Background(), 1, "SCORE_HOT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatalf("expected the second identical-key alert to be suppressed within cooldown")
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one dispatched alert, got %d", len(sink.sent))
	}
}

func TestEvaluate_DifferentScoreBandIsNotSuppressed(t *testing.T) {
	events := newFakeEvents()
	events.events[1] = postgres.Event{ID: 1}
	events.scores[1] = map[string]postgres.EventScore{
		scoring.KindPlantao: {Score: 72, Reasons: nil},
	}
	sink := &fakeSink{}
	e := New(events, sink, time.Hour, nil)

	if _, err := e.Evaluate(context.Background(), 1, "SCORE_HOT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events.scores[1][scoring.KindPlantao] = postgres.EventScore{Score: 15, Reasons: nil}
	sent, err := e.Evaluate(context.Background(), 1, "QUARANTINE_HEURISTIC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatalf("expected a materially different score band to produce a fresh alert")
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected two dispatched alerts, got %d", len(sink.sent))
	}
}

func TestEvaluate_SkipsMissingEventWithoutError(t *testing.T) {
	events := newFakeEvents()
	sink := &fakeSink{}
	e := New(events, sink, time.Minute, nil)

	sent, err := e.Evaluate(context.Background(), 999, "SCORE_HOT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatalf("expected no alert for a missing event")
	}
	if len(sink.sent) != 0 {
		t.Fatalf("expected nothing dispatched for a missing event")
	}
}
