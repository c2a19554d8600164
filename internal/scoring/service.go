// The orchestration in this file ties the pure plantao/oceano formulas to
// the store and queue: load the aggregate inputs, compute both scores,
// persist them, derive flags, and apply any proposed state transition.
// Grounded on original_source/backend/app/workers/scoring.py's
// run_scoring_for_event (load aggregates, score, persist, propose,
// transition-then-alert), generalized onto the narrow
// repository-shaped interfaces internal/organizer and internal/canonical
// already use.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// EventStore is the narrow slice of postgres.EventStore the scoring
// service needs, kept narrow so it can be faked in tests.
type EventStore interface {
	GetEvent(ctx context.Context, id int64) (postgres.Event, error)
	GetState(ctx context.Context, eventID int64) (postgres.EventState, error)
	TransitionState(ctx context.Context, st postgres.EventState) error
	ScoringAggregates(ctx context.Context, eventID int64, now time.Time) (postgres.ScoringAggregates, error)
	SaveScore(ctx context.Context, sc postgres.EventScore) (int64, error)
	UpdateScore(ctx context.Context, eventID int64, scorePlantao float64, flags []string) error
}

// AlertEnqueuer hands an alert-evaluation task to the queue. Nil is valid.
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, eventID int64, reason string) error
}

// Service runs spec.md §4.8's scoring pass for one event at a time, as
// dispatched by the score queue's consumer.
type Service struct {
	Events  EventStore
	Alerts  AlertEnqueuer
	SLO     eventstate.SLOConfig
	Log     *logging.Logger
	Metrics *metrics.Metrics
}

func New(events EventStore, alerts AlertEnqueuer, slo eventstate.SLOConfig, log *logging.Logger, m *metrics.Metrics) *Service {
	return &Service{Events: events, Alerts: alerts, SLO: slo, Log: log, Metrics: m}
}

// RunResult reports what one scoring pass computed, for logging and tests.
type RunResult struct {
	Plantao      Result
	Oceano       Result
	Flags        []Flag
	Proposed     ProposedState
	StateChanged bool
}

// RunScoring implements spec.md §4.8 end to end for one event: aggregate,
// score both dimensions, persist, derive flags, and apply any proposed
// state transition. A tombstoned event (already MERGED into another, or in
// a terminal state) is a no-op - rescoring a dead event has nothing left
// to drive.
func (s *Service) RunScoring(ctx context.Context, eventID int64, now time.Time) (RunResult, error) {
	event, err := s.Events.GetEvent(ctx, eventID)
	if err != nil {
		return RunResult{}, fmt.Errorf("scoring: load event: %w", err)
	}
	if event.CanonicalEventID != nil {
		return RunResult{}, nil
	}

	current, err := s.Events.GetState(ctx, eventID)
	if err != nil {
		return RunResult{}, fmt.Errorf("scoring: load state: %w", err)
	}
	if eventstate.Terminal(eventstate.State(current.State)) {
		return RunResult{}, nil
	}

	agg, err := s.Events.ScoringAggregates(ctx, eventID, now)
	if err != nil {
		return RunResult{}, fmt.Errorf("scoring: load aggregates: %w", err)
	}

	ageHours := now.Sub(event.FirstSeenAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	plantao := CalculatePlantao(PlantaoInput{
		Tier:         agg.Tier,
		VelocityDocs: float64(agg.VelocityDocs),
		SourceCount:  agg.SourceCount,
		AgeHours:     ageHours,
	})

	coverageLagMinutes := 0.0
	if !agg.HasTier1 {
		coverageLagMinutes = now.Sub(event.FirstSeenAt).Minutes()
		if coverageLagMinutes < 0 {
			coverageLagMinutes = 0
		}
	}
	oceano := CalculateOceano(OceanoInput{
		EvidenceScore:      agg.EvidenceScore,
		IsOfficial:         agg.IsOfficial,
		HasPDFEvidence:     agg.HasPDF,
		CoverageLagMinutes: coverageLagMinutes,
	})

	flags := DeriveFlags(float64(agg.VelocityDocs), agg.SourceCount)
	flagStrings := make([]string, len(flags))
	for i, f := range flags {
		flagStrings[i] = string(f)
	}

	if _, err := s.Events.SaveScore(ctx, postgres.EventScore{
		EventID: eventID, Kind: KindPlantao, Score: plantao.Score, Reasons: plantao.Reasons, ComputedAt: now,
	}); err != nil {
		return RunResult{}, fmt.Errorf("scoring: save plantao score: %w", err)
	}
	if _, err := s.Events.SaveScore(ctx, postgres.EventScore{
		EventID: eventID, Kind: KindOceano, Score: oceano.Score, Reasons: oceano.Reasons, ComputedAt: now,
	}); err != nil {
		return RunResult{}, fmt.Errorf("scoring: save oceano score: %w", err)
	}
	if err := s.Events.UpdateScore(ctx, eventID, plantao.Score, flagStrings); err != nil {
		return RunResult{}, fmt.Errorf("scoring: update event score/flags: %w", err)
	}

	if s.Metrics != nil {
		proposedLabel := "NONE"
		if p := ProposeState(plantao.Score, agg.SourceCount, current.State); p != ProposeNone {
			proposedLabel = string(p)
		}
		s.Metrics.ScoresComputedTotal.WithLabelValues(proposedLabel).Inc()
	}

	proposed := ProposeState(plantao.Score, agg.SourceCount, current.State)
	result := RunResult{
		Plantao:  plantao,
		Oceano:   oceano,
		Flags:    flags,
		Proposed: proposed,
	}

	target, reason := targetForProposal(proposed)
	if target == "" || string(target) == current.State {
		return result, nil
	}

	if err := s.Events.TransitionState(ctx, postgres.EventState{
		EventID:   eventID,
		State:     string(target),
		EnteredAt: now,
		ExpiresAt: eventstate.DeriveExpiry(target, now, s.SLO),
		Reason:    reason,
	}); err != nil {
		return RunResult{}, fmt.Errorf("scoring: apply proposed transition: %w", err)
	}
	result.StateChanged = true

	if s.Metrics != nil {
		s.Metrics.StateTransitions.WithLabelValues(current.State, string(target)).Inc()
	}
	if s.Log != nil {
		s.Log.WithContext(ctx).WithField("event_id", eventID).WithField("to", string(target)).
			Info("scoring: applied proposed state transition")
	}

	if s.Alerts != nil {
		if err := s.Alerts.EnqueueAlert(ctx, eventID, reason); err != nil && s.Log != nil {
			s.Log.WithContext(ctx).WithField("event_id", eventID).WithError(err).
				Warn("scoring: failed to enqueue alert")
		}
	}

	return result, nil
}

// targetForProposal maps a scoring proposal onto the state it asks for and
// the reason code to record. Only QUARANTINE and HOT are scoring-driven
// transitions (spec.md §4.9's table); NEW/HYDRATING is the organizer's
// transition on event creation, so ProposeHydrating never applies here.
func targetForProposal(p ProposedState) (eventstate.State, string) {
	switch p {
	case ProposeQuarantine:
		return eventstate.Quarantine, eventstate.ReasonQuarantineHeuristic
	case ProposeHot:
		return eventstate.Hot, eventstate.ReasonScoreHot
	default:
		return "", ""
	}
}
