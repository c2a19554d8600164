package eventstate

import (
	"context"
	"testing"
	"time"

	"github.com/pautaradar/newsradar/internal/store/postgres"
)

type fakeEventStore struct {
	expired     []postgres.EventState
	transitions []postgres.EventState
}

func (f *fakeEventStore) ExpiredStates(ctx context.Context, now time.Time, limit int) ([]postgres.EventState, error) {
	return f.expired, nil
}

func (f *fakeEventStore) TransitionState(ctx context.Context, st postgres.EventState) error {
	f.transitions = append(f.transitions, st)
	return nil
}

// Grounded on spec.md §8's boundary case: "Hydration timeout: event created
// at T, no further docs; at T + SLO_FAST + ε a maintenance tick transitions
// to PARTIAL_ENRICH."
func TestRunMaintenance_HydratingPastExpiryGoesPartialEnrich(t *testing.T) {
	now := time.Now()
	store := &fakeEventStore{expired: []postgres.EventState{
		{EventID: 1, State: string(Hydrating), EnteredAt: now.Add(-90 * time.Second), Reason: ReasonEventCreated},
	}}

	n, err := RunMaintenance(context.Background(), store, defaultSLO(), nil, nil, 100, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 transition, got %d", n)
	}
	if store.transitions[0].State != string(PartialEnrich) {
		t.Fatalf("expected PARTIAL_ENRICH, got %s", store.transitions[0].State)
	}
	if store.transitions[0].ExpiresAt != nil {
		t.Fatalf("expected no further expiry after PARTIAL_ENRICH")
	}
}

// Grounded on spec.md §8's boundary case: "Quarantine TTL: event in
// QUARANTINE since T0; at T0 + QUARANTINE_TTL + ε maintenance transitions
// to EXPIRED."
func TestRunMaintenance_QuarantinePastTTLGoesExpired(t *testing.T) {
	now := time.Now()
	store := &fakeEventStore{expired: []postgres.EventState{
		{EventID: 2, State: string(Quarantine), EnteredAt: now.Add(-1000 * time.Second)},
	}}

	n, err := RunMaintenance(context.Background(), store, defaultSLO(), nil, nil, 100, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 transition, got %d", n)
	}
	if store.transitions[0].State != string(Expired) {
		t.Fatalf("expected EXPIRED, got %s", store.transitions[0].State)
	}
	if store.transitions[0].Reason != ReasonQuarantineTTLExpired {
		t.Fatalf("expected reason %s, got %s", ReasonQuarantineTTLExpired, store.transitions[0].Reason)
	}
}

func TestRunMaintenance_IgnoresOtherStates(t *testing.T) {
	now := time.Now()
	store := &fakeEventStore{expired: []postgres.EventState{
		{EventID: 3, State: string(Hot)},
		{EventID: 4, State: string(PartialEnrich)},
	}}

	n, err := RunMaintenance(context.Background(), store, defaultSLO(), nil, nil, 100, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no transitions, got %d", n)
	}
}
