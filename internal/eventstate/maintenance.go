package eventstate

import (
	"context"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// EventStore is the subset of postgres.EventStore the maintenance tick
// needs, kept narrow so it can be faked in tests.
type EventStore interface {
	ExpiredStates(ctx context.Context, now time.Time, limit int) ([]postgres.EventState, error)
	TransitionState(ctx context.Context, st postgres.EventState) error
}

// RunMaintenance implements spec.md §4.9's periodic maintenance tick
// (≈30 s): it reads events in HYDRATING/QUARANTINE and applies the
// timeout/TTL rules, grounded on
// original_source/backend/app/workers/state_maintenance.py. A missed tick
// is caught up by the next one (spec.md §5); this function is idempotent
// per call since it only transitions events whose `expires_at` has already
// passed.
func RunMaintenance(ctx context.Context, store EventStore, slo SLOConfig, log *logging.Logger, m *metrics.Metrics, limit int, now time.Time) (transitioned int, err error) {
	expired, err := store.ExpiredStates(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	for _, st := range expired {
		var next State
		var reason string

		switch State(st.State) {
		case Hydrating:
			next, reason = PartialEnrich, pickHydrationReason(st)
		case Quarantine:
			next, reason = Expired, ReasonQuarantineTTLExpired
		default:
			continue
		}

		expiresAt := DeriveExpiry(next, now, slo)
		if err := store.TransitionState(ctx, postgres.EventState{
			EventID:   st.EventID,
			State:     string(next),
			EnteredAt: now,
			ExpiresAt: expiresAt,
			Reason:    reason,
		}); err != nil {
			return transitioned, err
		}

		transitioned++
		if m != nil {
			m.StateTransitions.WithLabelValues(st.State, string(next)).Inc()
		}
		if log != nil {
			log.WithField("event_id", st.EventID).
				WithField("from", st.State).
				WithField("to", string(next)).
				WithField("reason", reason).
				Info("state maintenance transition")
		}
	}

	return transitioned, nil
}

// pickHydrationReason recovers the fast-path reason when the triggering
// pool wasn't recorded; HYDRATING events always carry at least the fast
// timeout, so this is a safe default (spec.md §9 open question on pool
// mapping — see SPEC_FULL.md §F).
func pickHydrationReason(st postgres.EventState) string {
	if st.Reason != "" {
		return st.Reason
	}
	return ReasonHydrationTimeoutFast
}

// DeriveExpiry sets the next TTL watermark so the following tick (or an
// editorial transition landing on the same state) knows when to
// re-evaluate this event, or nil for states with no further timeout.
func DeriveExpiry(next State, now time.Time, slo SLOConfig) *time.Time {
	if next == Quarantine {
		t := now.Add(slo.QuarantineTTLS)
		return &t
	}
	return nil
}
