package canonical

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeEvents struct {
	candidates []postgres.AnchorCandidate
	merges     []struct {
		survivor, absorbed int64
		key                string
	}
	mergeResults map[string]postgres.MergeResult
}

func (f *fakeEvents) StrongAnchorCandidates(ctx context.Context, since time.Time, kinds []string) ([]postgres.AnchorCandidate, error) {
	return f.candidates, nil
}

func (f *fakeEvents) MergeEvents(ctx context.Context, survivingID, absorbedID int64, reason, idempotencyKey string) (postgres.MergeResult, error) {
	f.merges = append(f.merges, struct {
		survivor, absorbed int64
		key                string
	}{survivingID, absorbedID, idempotencyKey})
	if res, ok := f.mergeResults[idempotencyKey]; ok {
		return res, nil
	}
	return postgres.MergeResult{Merged: true, MovedDocs: 1}, nil
}

type fakeAlerts struct {
	events  []int64
	reasons []string
}

func (f *fakeAlerts) EnqueueAlert(ctx context.Context, eventID int64, reason string) error {
	f.events = append(f.events, eventID)
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeScore struct {
	events []int64
}

func (f *fakeScore) EnqueueScore(ctx context.Context, eventID int64) error {
	f.events = append(f.events, eventID)
	return nil
}

func TestRunOnce_MergesLaterEventsIntoEarliestByAnchor(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	events := &fakeEvents{candidates: []postgres.AnchorCandidate{
		{EventID: 3, FirstSeenAt: now.Add(-2 * time.Hour), AnchorKind: "CNPJ", AnchorValue: "11.111.111/0001-11"},
		{EventID: 1, FirstSeenAt: now.Add(-5 * time.Hour), AnchorKind: "CNPJ", AnchorValue: "11.111.111/0001-11"},
		{EventID: 2, FirstSeenAt: now.Add(-3 * time.Hour), AnchorKind: "CNPJ", AnchorValue: "11.111.111/0001-11"},
	}}
	alerts := &fakeAlerts{}
	score := &fakeScore{}
	c := New(events, alerts, score, nil)

	res, err := c.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MergedCount != 2 {
		t.Fatalf("expected 2 merges (event 1 absorbs 2 and 3), got %d", res.MergedCount)
	}
	if len(events.merges) != 2 {
		t.Fatalf("expected 2 MergeEvents calls, got %d", len(events.merges))
	}
	for _, m := range events.merges {
		if m.survivor != 1 {
			t.Fatalf("expected event 1 (earliest first_seen_at) as survivor, got %d", m.survivor)
		}
	}
	if len(alerts.events) != 2 {
		t.Fatalf("expected one EVENT_MERGED alert per absorbed event, got %d", len(alerts.events))
	}
	if len(score.events) != 1 || score.events[0] != 1 {
		t.Fatalf("expected exactly one rescoring task for the survivor, got %+v", score.events)
	}
}

func TestRunOnce_SkipsGroupsWithOnlyOneEvent(t *testing.T) {
	events := &fakeEvents{candidates: []postgres.AnchorCandidate{
		{EventID: 1, FirstSeenAt: time.Now(), AnchorKind: "SEI", AnchorValue: "00000.000000/2026-01"},
	}}
	c := New(events, nil, nil, nil)

	res, err := c.RunOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MergedCount != 0 || len(events.merges) != 0 {
		t.Fatalf("expected no merge attempted for a singleton group, got %+v", res)
	}
}

func TestRunOnce_NoMergeDoesNotEnqueueRescoring(t *testing.T) {
	events := &fakeEvents{
		candidates: []postgres.AnchorCandidate{
			{EventID: 1, FirstSeenAt: time.Now().Add(-time.Hour), AnchorKind: "TCU", AnchorValue: "123/2026"},
			{EventID: 2, FirstSeenAt: time.Now(), AnchorKind: "TCU", AnchorValue: "123/2026"},
		},
		mergeResults: map[string]postgres.MergeResult{
			"canon:1:2": {Merged: false},
		},
	}
	score := &fakeScore{}
	c := New(events, nil, score, nil)

	res, err := c.RunOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MergedCount != 0 {
		t.Fatalf("expected the already-merged idempotent result to not count, got %d", res.MergedCount)
	}
	if len(score.events) != 0 {
		t.Fatalf("expected no rescoring task when nothing was actually merged, got %+v", score.events)
	}
}

func TestRunOnce_PropagatesCandidateLoadError(t *testing.T) {
	c := New(errEvents{}, nil, nil, nil)
	if _, err := c.RunOnce(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected the candidate-load error to propagate")
	}
}

type errEvents struct{}

func (errEvents) StrongAnchorCandidates(ctx context.Context, since time.Time, kinds []string) ([]postgres.AnchorCandidate, error) {
	return nil, context.DeadlineExceeded
}

func (errEvents) MergeEvents(ctx context.Context, survivingID, absorbedID int64, reason, idempotencyKey string) (postgres.MergeResult, error) {
	return postgres.MergeResult{}, nil
}
