// Package editorial implements the single editorial-action entry point of
// spec.md §4.13: IGNORE, SNOOZE, PAUTAR, MERGE, and SPLIT, all funneled
// through one gated Apply call. Grounded on
// original_source/backend/app/api/feedback.py's record_feedback: gate
// before any persistence or mutation, then persist the FeedbackEvent, map the
// de-escalation/escalation actions onto a direct state transition, and
// delegate MERGE/SPLIT to the existing merge/split machinery, firing an
// alert only when a direct state transition actually applied (MERGE only
// if the merge wasn't already a no-op; SPLIT never alerts in the
// original, it only rescores both resulting events).
package editorial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// EventStore is the narrow slice of postgres.EventStore the editorial
// service needs, kept narrow so it can be faked in tests.
type EventStore interface {
	GetEvent(ctx context.Context, id int64) (postgres.Event, error)
	GetState(ctx context.Context, eventID int64) (postgres.EventState, error)
	TransitionState(ctx context.Context, st postgres.EventState) error
	SaveFeedback(ctx context.Context, f postgres.FeedbackEvent) (int64, error)
	MergeEvents(ctx context.Context, survivingID, absorbedID int64, reason, idempotencyKey string) (postgres.MergeResult, error)
	SplitEvent(ctx context.Context, sourceEventID int64, docIDs []int64, newSummary, newLane string) (postgres.SplitResult, error)
}

// AlertEnqueuer hands an alert-evaluation task to the queue. Nil is valid.
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, eventID int64, reason string) error
}

// ScoreEnqueuer hands a rescoring task to the queue. Nil is valid.
type ScoreEnqueuer interface {
	EnqueueScore(ctx context.Context, eventID int64) error
}

// ValidationError is a request shape problem (spec.md §6: 400).
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// BlockedError reports an action rejected by state gating (spec.md §6: 409).
type BlockedError struct{ Reason string }

func (e *BlockedError) Error() string { return "editorial: action blocked: " + e.Reason }

// Request is one FeedbackEvent submission (spec.md §3, §6).
type Request struct {
	EventID       int64
	Action        string
	Actor         string
	TargetEventID *int64
	DocIDs        []int64
	NewSummary    string
	NewLane       string
	Detail        json.RawMessage
}

// MergeOutcome mirrors postgres.MergeResult plus the event ids involved,
// for the HTTP response body.
type MergeOutcome struct {
	FromEventID int64
	ToEventID   int64
	Merged      bool
	MovedDocs   int
	DedupedDocs int
}

// SplitOutcome mirrors postgres.SplitResult plus the source event id.
type SplitOutcome struct {
	SourceEventID int64
	NewEventID    int64
	MovedDocs     int
	RemainingDocs int
}

// Result is what Apply returns on success.
type Result struct {
	EventID      int64
	Action       string
	StateChanged bool
	Merge        *MergeOutcome
	Split        *SplitOutcome
}

// Service runs spec.md §4.13's gated editorial actions.
type Service struct {
	Events EventStore
	Alerts AlertEnqueuer
	Score  ScoreEnqueuer
	SLO    eventstate.SLOConfig
	Log    *logging.Logger
}

func New(events EventStore, alerts AlertEnqueuer, score ScoreEnqueuer, slo eventstate.SLOConfig, log *logging.Logger) *Service {
	return &Service{Events: events, Alerts: alerts, Score: score, SLO: slo, Log: log}
}

// Apply implements spec.md §4.13's single entry point.
func (s *Service) Apply(ctx context.Context, req Request, now time.Time) (Result, error) {
	if !eventstate.ValidAction(req.Action) {
		return Result{}, &ValidationError{Msg: "invalid editorial action"}
	}
	action := eventstate.Action(req.Action)

	event, err := s.Events.GetEvent(ctx, req.EventID)
	if err != nil {
		return Result{}, fmt.Errorf("editorial: load event: %w", err)
	}

	current, err := s.Events.GetState(ctx, req.EventID)
	if err != nil {
		return Result{}, fmt.Errorf("editorial: load state: %w", err)
	}

	allowed, blockReason := eventstate.Gate(action, eventstate.State(current.State), event.HydrationPool, current.EnteredAt, now, s.SLO)
	if !allowed {
		return Result{}, &BlockedError{Reason: blockReason}
	}

	if _, err := s.Events.SaveFeedback(ctx, postgres.FeedbackEvent{
		EventID:   req.EventID,
		Action:    req.Action,
		Actor:     req.Actor,
		Detail:    req.Detail,
		CreatedAt: now,
	}); err != nil {
		return Result{}, fmt.Errorf("editorial: save feedback: %w", err)
	}

	result := Result{EventID: req.EventID, Action: req.Action}

	switch action {
	case eventstate.ActionIgnore, eventstate.ActionSnooze, eventstate.ActionPautar:
		target, reason, _ := eventstate.ApplyFeedback(action)
		if err := s.Events.TransitionState(ctx, postgres.EventState{
			EventID:   req.EventID,
			State:     string(target),
			EnteredAt: now,
			ExpiresAt: eventstate.DeriveExpiry(target, now, s.SLO),
			Reason:    reason,
		}); err != nil {
			return Result{}, fmt.Errorf("editorial: transition state: %w", err)
		}
		result.StateChanged = true
		s.enqueueAlert(ctx, req.EventID, reason)

	case eventstate.ActionMerge:
		if req.TargetEventID == nil {
			return Result{}, &ValidationError{Msg: "MERGE requires target_event_id"}
		}
		targetID := *req.TargetEventID
		if targetID == req.EventID {
			return Result{}, &ValidationError{Msg: "cannot merge event into itself"}
		}

		target, err := s.Events.GetEvent(ctx, targetID)
		if err != nil {
			return Result{}, fmt.Errorf("editorial: load merge target: %w", err)
		}
		if target.CanonicalEventID != nil {
			return Result{}, &BlockedError{Reason: fmt.Sprintf("target event already merged into %d", *target.CanonicalEventID)}
		}
		targetState, err := s.Events.GetState(ctx, targetID)
		if err != nil {
			return Result{}, fmt.Errorf("editorial: load merge target state: %w", err)
		}
		if allowed, reason := eventstate.Gate(eventstate.ActionMerge, eventstate.State(targetState.State), target.HydrationPool, targetState.EnteredAt, now, s.SLO); !allowed {
			return Result{}, &BlockedError{Reason: "target blocked: " + reason}
		}

		idempotencyKey := fmt.Sprintf("editorial:%d:%d:%d", targetID, req.EventID, now.UnixNano())
		mergeRes, err := s.Events.MergeEvents(ctx, targetID, req.EventID, eventstate.ReasonMergedEditorial, idempotencyKey)
		if err != nil {
			return Result{}, fmt.Errorf("editorial: merge: %w", err)
		}
		result.StateChanged = mergeRes.Merged
		result.Merge = &MergeOutcome{
			FromEventID: req.EventID,
			ToEventID:   targetID,
			Merged:      mergeRes.Merged,
			MovedDocs:   mergeRes.MovedDocs,
			DedupedDocs: mergeRes.DedupedDocs,
		}
		if mergeRes.Merged {
			s.enqueueAlert(ctx, req.EventID, eventstate.ReasonMergedEditorial)
			s.enqueueScore(ctx, targetID)
		}

	case eventstate.ActionSplit:
		if len(req.DocIDs) == 0 {
			return Result{}, &ValidationError{Msg: "SPLIT requires a non-empty doc_ids list"}
		}
		splitRes, err := s.Events.SplitEvent(ctx, req.EventID, req.DocIDs, req.NewSummary, req.NewLane)
		if err != nil {
			return Result{}, fmt.Errorf("editorial: split: %w", err)
		}
		result.Split = &SplitOutcome{
			SourceEventID: req.EventID,
			NewEventID:    splitRes.NewEventID,
			MovedDocs:     splitRes.MovedDocs,
			RemainingDocs: splitRes.RemainingDocs,
		}
		s.enqueueScore(ctx, req.EventID)
		s.enqueueScore(ctx, splitRes.NewEventID)
	}

	if s.Log != nil {
		s.Log.WithContext(ctx).WithField("event_id", req.EventID).WithField("action", req.Action).
			Info("editorial: action recorded")
	}
	return result, nil
}

func (s *Service) enqueueAlert(ctx context.Context, eventID int64, reason string) {
	if s.Alerts == nil {
		return
	}
	if err := s.Alerts.EnqueueAlert(ctx, eventID, reason); err != nil && s.Log != nil {
		s.Log.WithContext(ctx).WithField("event_id", eventID).WithError(err).
			Warn("editorial: failed to enqueue alert")
	}
}

func (s *Service) enqueueScore(ctx context.Context, eventID int64) {
	if s.Score == nil {
		return
	}
	if err := s.Score.EnqueueScore(ctx, eventID); err != nil && s.Log != nil {
		s.Log.WithContext(ctx).WithField("event_id", eventID).WithError(err).
			Warn("editorial: failed to enqueue rescoring")
	}
}
