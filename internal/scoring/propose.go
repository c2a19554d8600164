package scoring

// EventScore.Kind values, stable across releases; persisted by the scoring
// worker and read back by internal/alerts to band each score for its alert
// key (spec.md §4.11).
const (
	KindPlantao = "plantao"
	KindOceano  = "oceano"
)

// Flag is a derived boolean signal attached to an Event after scoring
// (spec.md §4.8).
type Flag string

const FlagUnverifiedViral Flag = "UNVERIFIED_VIRAL"

// DeriveFlags computes the post-scoring flag set.
func DeriveFlags(velocityDocs float64, sourceCount int) []Flag {
	var flags []Flag
	if velocityDocs > 50 && sourceCount >= 3 {
		flags = append(flags, FlagUnverifiedViral)
	}
	return flags
}

// ProposedState is the state-machine transition the scoring pass proposes;
// internal/eventstate decides whether to apply it against the current state.
type ProposedState string

const (
	ProposeQuarantine ProposedState = "QUARANTINE"
	ProposeHot        ProposedState = "HOT"
	ProposeHydrating  ProposedState = "HYDRATING"
	ProposeNone       ProposedState = ""
)

// ProposeState implements spec.md §4.8's post-scoring state proposal:
// quarantine wins when the event looks unreliable (low score, enough
// diversity to not be a single noisy source); HOT when score crosses 70;
// otherwise HYDRATING is proposed only while the event is still new.
func ProposeState(scorePlantao float64, sourceCount int, currentState string) ProposedState {
	if scorePlantao < 20 && sourceCount >= 2 {
		return ProposeQuarantine
	}
	if scorePlantao >= 70 {
		return ProposeHot
	}
	if currentState == "NEW" || currentState == "HYDRATING" {
		return ProposeHydrating
	}
	return ProposeNone
}
