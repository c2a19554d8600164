package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeScoringStore struct {
	event postgres.Event
	state postgres.EventState
	agg   postgres.ScoringAggregates

	savedScores    []postgres.EventScore
	updatedFlags   []string
	updatedPlantao float64
	transitions    []postgres.EventState
}

func (f *fakeScoringStore) GetEvent(ctx context.Context, id int64) (postgres.Event, error) {
	return f.event, nil
}

func (f *fakeScoringStore) GetState(ctx context.Context, eventID int64) (postgres.EventState, error) {
	return f.state, nil
}

func (f *fakeScoringStore) TransitionState(ctx context.Context, st postgres.EventState) error {
	f.transitions = append(f.transitions, st)
	f.state = st
	return nil
}

func (f *fakeScoringStore) ScoringAggregates(ctx context.Context, eventID int64, now time.Time) (postgres.ScoringAggregates, error) {
	return f.agg, nil
}

func (f *fakeScoringStore) SaveScore(ctx context.Context, sc postgres.EventScore) (int64, error) {
	f.savedScores = append(f.savedScores, sc)
	return int64(len(f.savedScores)), nil
}

func (f *fakeScoringStore) UpdateScore(ctx context.Context, eventID int64, scorePlantao float64, flags []string) error {
	f.updatedPlantao = scorePlantao
	f.updatedFlags = flags
	return nil
}

type fakeAlertEnqueuer struct {
	calls []struct {
		eventID int64
		reason  string
	}
}

func (f *fakeAlertEnqueuer) EnqueueAlert(ctx context.Context, eventID int64, reason string) error {
	f.calls = append(f.calls, struct {
		eventID int64
		reason  string
	}{eventID, reason})
	return nil
}

func TestRunScoring_HotTransitionEnqueuesAlert(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeScoringStore{
		event: postgres.Event{ID: 1, FirstSeenAt: now.Add(-5 * time.Minute)},
		state: postgres.EventState{EventID: 1, State: "HYDRATING", EnteredAt: now.Add(-5 * time.Minute)},
		agg: postgres.ScoringAggregates{
			Tier: 1, SourceCount: 50, IsOfficial: true, HasTier1: true,
			VelocityDocs: 2000, EvidenceScore: 5, HasPDF: true,
		},
	}
	alerts := &fakeAlertEnqueuer{}
	svc := New(store, alerts, eventstate.SLOConfig{QuarantineTTLS: 15 * time.Minute}, nil, nil)

	result, err := svc.RunScoring(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Plantao.Score < 70 {
		t.Fatalf("expected a HOT-range plantao score, got %f", result.Plantao.Score)
	}
	if !result.StateChanged {
		t.Fatalf("expected state change to HOT")
	}
	if store.state.State != string(eventstate.Hot) {
		t.Fatalf("expected state HOT, got %s", store.state.State)
	}
	if len(alerts.calls) != 1 || alerts.calls[0].reason != eventstate.ReasonScoreHot {
		t.Fatalf("expected one SCORE_HOT alert enqueue, got %+v", alerts.calls)
	}
	if len(store.savedScores) != 2 {
		t.Fatalf("expected both plantao and oceano scores saved, got %d", len(store.savedScores))
	}
}

func TestRunScoring_QuarantineProposalTransitions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeScoringStore{
		event: postgres.Event{ID: 2, FirstSeenAt: now.Add(-2 * time.Hour)},
		state: postgres.EventState{EventID: 2, State: "HYDRATING", EnteredAt: now.Add(-2 * time.Hour)},
		agg: postgres.ScoringAggregates{
			Tier: 4, SourceCount: 2, VelocityDocs: 0, EvidenceScore: 0,
		},
	}
	svc := New(store, nil, eventstate.SLOConfig{QuarantineTTLS: 15 * time.Minute}, nil, nil)

	result, err := svc.RunScoring(context.Background(), 2, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Proposed != ProposeQuarantine {
		t.Fatalf("expected a quarantine proposal, got %s (score=%f)", result.Proposed, result.Plantao.Score)
	}
	if store.state.State != string(eventstate.Quarantine) {
		t.Fatalf("expected state QUARANTINE, got %s", store.state.State)
	}
	if store.state.ExpiresAt == nil {
		t.Fatalf("expected quarantine transition to set an expiry")
	}
}

func TestRunScoring_TombstonedEventIsNoOp(t *testing.T) {
	canonical := int64(99)
	store := &fakeScoringStore{
		event: postgres.Event{ID: 3, CanonicalEventID: &canonical},
	}
	svc := New(store, nil, eventstate.SLOConfig{}, nil, nil)

	result, err := svc.RunScoring(context.Background(), 3, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StateChanged || len(store.savedScores) != 0 {
		t.Fatalf("expected tombstoned event to be skipped entirely, got %+v", result)
	}
}

func TestRunScoring_TerminalStateIsNoOp(t *testing.T) {
	store := &fakeScoringStore{
		event: postgres.Event{ID: 4},
		state: postgres.EventState{EventID: 4, State: "IGNORED"},
	}
	svc := New(store, nil, eventstate.SLOConfig{}, nil, nil)

	result, err := svc.RunScoring(context.Background(), 4, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.savedScores) != 0 {
		t.Fatalf("expected no scores saved for a terminal event, got %d", len(store.savedScores))
	}
	_ = result
}
