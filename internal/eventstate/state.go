// Package eventstate implements the event status state machine and its
// editorial action gating (spec.md §4.9), grounded on
// original_source/backend/app/state_engine.py and
// original_source/backend/app/event_state_service.py.
package eventstate

import "time"

// State is one value of spec.md §3's status domain.
type State string

const (
	New           State = "NEW"
	Hydrating     State = "HYDRATING"
	PartialEnrich State = "PARTIAL_ENRICH"
	FailedEnrich  State = "FAILED_ENRICH"
	Quarantine    State = "QUARANTINE"
	Hot           State = "HOT"
	Merged        State = "MERGED"
	Ignored       State = "IGNORED"
	Expired       State = "EXPIRED"
)

// Terminal reports whether a state is one spec.md §4.9 names terminal. Gate
// blocks MERGE, SPLIT and PAUTAR on these states; IGNORE and SNOOZE are
// never gated, so an editorial IGNORE or SNOOZE still moves an event out of
// a terminal state.
func Terminal(s State) bool {
	switch s {
	case Merged, Ignored, Expired:
		return true
	default:
		return false
	}
}

// Transition reason codes. Stable strings, persisted on EventState rows and
// used as Prometheus label values.
const (
	ReasonHydrationTimeoutFast   = "HYDRATION_TIMEOUT_FAST"
	ReasonHydrationTimeoutRender = "HYDRATION_TIMEOUT_RENDER"
	ReasonHydrationTimeoutDeep   = "HYDRATION_TIMEOUT_DEEP"
	ReasonScoreHot               = "SCORE_HOT"
	ReasonQuarantineHeuristic    = "QUARANTINE_HEURISTIC"
	ReasonQuarantineTTLExpired   = "QUARANTINE_TTL_EXPIRED"
	ReasonMergedCanonicalizer    = "HARD_ANCHOR_MATCH"
	ReasonMergedEditorial        = "EDITORIAL_MERGE"
	ReasonFeedbackIgnore         = "FEEDBACK_IGNORE"
	ReasonFeedbackSnooze         = "FEEDBACK_SNOOZE"
	ReasonFeedbackPautar         = "FEEDBACK_PAUTAR"
	ReasonInitialState           = "INITIAL_STATE_BACKFILL"
	ReasonEventCreated           = "EVENT_CREATED"
)

// SLOConfig carries the timeout/TTL knobs spec.md §6 names as environment
// variables (SLO_FAST_PATH_S, SLO_RENDER_PATH_S, SLO_DEEP_PATH_S,
// QUARANTINE_TTL_S); infrastructure/config.Config already parses them into
// time.Duration fields and is passed through verbatim by callers.
type SLOConfig struct {
	FastPathS      time.Duration
	RenderPathS    time.Duration
	DeepPathS      time.Duration
	QuarantineTTLS time.Duration
}

func (c SLOConfig) timeoutForPool(pool string) (time.Duration, string) {
	switch pool {
	case "HEAVY_RENDER":
		return c.RenderPathS, ReasonHydrationTimeoutRender
	case "DEEP_EXTRACT":
		return c.DeepPathS, ReasonHydrationTimeoutDeep
	default:
		return c.FastPathS, ReasonHydrationTimeoutFast
	}
}

// EvaluateHydrationTimeout implements spec.md §4.9's HYDRATING→PARTIAL_ENRICH
// edge: the originating pool's SLO decides the timeout (open question §F:
// "record the pool on the triggering task and use that value").
func EvaluateHydrationTimeout(pool string, hydrationStartAt, now time.Time, slo SLOConfig) (timedOut bool, reason string) {
	timeout, reason := slo.timeoutForPool(pool)
	if now.Sub(hydrationStartAt) > timeout {
		return true, reason
	}
	return false, ""
}

// QuarantineExpired implements the QUARANTINE→EXPIRED edge.
func QuarantineExpired(updatedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(updatedAt) > ttl
}

// Action is one of spec.md §3's FeedbackEvent.action values.
type Action string

const (
	ActionIgnore Action = "IGNORE"
	ActionSnooze Action = "SNOOZE"
	ActionPautar Action = "PAUTAR"
	ActionMerge  Action = "MERGE"
	ActionSplit  Action = "SPLIT"
)

// ValidAction reports whether a string is a recognized FeedbackEvent action
// (spec.md §4.13); the editorial API uses this to reject unknown actions
// with 400 before touching any event.
func ValidAction(a string) bool {
	switch Action(a) {
	case ActionIgnore, ActionSnooze, ActionPautar, ActionMerge, ActionSplit:
		return true
	default:
		return false
	}
}

// ApplyFeedback maps IGNORE, SNOOZE and PAUTAR, the editorial actions with a
// fixed target state, directly onto that state and a reason code (spec.md
// §4.13); PAUTAR is still subject to Gate first. MERGE and SPLIT are handled by the
// canonicalizer/editorial services, not here, since they don't map onto a
// fixed target state.
func ApplyFeedback(action Action) (target State, reason string, ok bool) {
	switch action {
	case ActionIgnore:
		return Ignored, ReasonFeedbackIgnore, true
	case ActionSnooze:
		return Quarantine, ReasonFeedbackSnooze, true
	case ActionPautar:
		return Hot, ReasonFeedbackPautar, true
	default:
		return "", "", false
	}
}
