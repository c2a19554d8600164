// Package alerts implements the alert-evaluation stage of spec.md §4.11:
// the alerts-queue consumer that turns an effective state transition into
// a deduped, cooled-down notification. Grounded on
// original_source/backend/app/workers/alerts.py's run_alerts
// (hash the event's current score bands/reasons, skip on an active
// cooldown or a repeated hash, persist before dispatch), adapted to this
// schema's per-(event_id, alert_key) EventAlertState rows: since a
// repeated alert_key always reuses the same row, checking that row's
// own last_sent_at against the cooldown implements both of spec.md
// §4.11's suppression conditions ("within cooldown or if the key
// repeats") at once - a materially different key (different score band or
// reason set) always produces a fresh row and is never suppressed by a
// stale one.
package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/internal/scoring"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// DefaultCooldown mirrors ALERT_COOLDOWN_S's documented default
// (spec.md §6); callers normally pass infrastructure/config.Config's
// AlertCooldownS instead.
const DefaultCooldown = 300 * time.Second

// EventStore is the narrow slice of postgres.EventStore the evaluator
// needs, kept narrow so it can be faked in tests.
type EventStore interface {
	GetEvent(ctx context.Context, id int64) (postgres.Event, error)
	LatestScore(ctx context.Context, eventID int64, kind string) (postgres.EventScore, error)
	LastAlertSent(ctx context.Context, eventID int64, alertKey string) (time.Time, bool, error)
	RecordAlertSent(ctx context.Context, eventID int64, alertKey string, sentAt time.Time) error
}

// Alert is the notification handed to a Sink once dedupe/cooldown has
// cleared it.
type Alert struct {
	EventID          int64
	Key              string
	TransitionReason string
	PlantaoScore     float64
	PlantaoBand      int
	PlantaoReasons   []string
	OceanoScore      float64
	OceanoBand       int
	OceanoReasons    []string
	GeneratedAt      time.Time
}

// Sink dispatches a cleared alert. Nil is valid: the evaluator still
// records the cooldown state, it just has nowhere to send the
// notification (useful in tests, or a bootstrap phase with no channel
// wired yet).
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// Evaluator runs spec.md §4.11's per-alert-task logic.
type Evaluator struct {
	Events   EventStore
	Sink     Sink
	Cooldown time.Duration
	Log      *logging.Logger
}

func New(events EventStore, sink Sink, cooldown time.Duration, log *logging.Logger) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{Events: events, Sink: sink, Cooldown: cooldown, Log: log}
}

// Evaluate processes one queue.AlertTask. transitionReason is carried
// through to the dispatched Alert for display only; it plays no part in
// the dedupe key (spec.md §4.11 keys strictly on event id, score band,
// and reason arrays, so distinct transitions that land on the same
// score/reasons still collapse into one alert).
func (e *Evaluator) Evaluate(ctx context.Context, eventID int64, transitionReason string) (sent bool, err error) {
	ev, err := e.Events.GetEvent(ctx, eventID)
	if err != nil {
		if err == postgres.ErrNotFound {
			if e.Log != nil {
				e.Log.WithContext(ctx).WithField("event_id", eventID).Warn("alerts: skipped, event not found")
			}
			return false, nil
		}
		return false, fmt.Errorf("alerts: load event: %w", err)
	}

	plantao, err := e.Events.LatestScore(ctx, eventID, scoring.KindPlantao)
	if err != nil && err != postgres.ErrNotFound {
		return false, fmt.Errorf("alerts: load plantao score: %w", err)
	}
	oceano, err := e.Events.LatestScore(ctx, eventID, scoring.KindOceano)
	if err != nil && err != postgres.ErrNotFound {
		return false, fmt.Errorf("alerts: load oceano score: %w", err)
	}

	key := alertKey(eventID, plantao, oceano)
	now := time.Now().UTC()

	last, ok, err := e.Events.LastAlertSent(ctx, eventID, key)
	if err != nil {
		return false, fmt.Errorf("alerts: load cooldown state: %w", err)
	}
	if ok && now.Sub(last) < e.Cooldown {
		if e.Log != nil {
			e.Log.WithContext(ctx).WithField("event_id", eventID).WithField("alert_key", key).
				Info("alerts: suppressed, within cooldown")
		}
		return false, nil
	}

	alert := Alert{
		EventID:          ev.ID,
		Key:              key,
		TransitionReason: transitionReason,
		PlantaoScore:     plantao.Score,
		PlantaoBand:      scoreBand(plantao.Score),
		PlantaoReasons:   plantao.Reasons,
		OceanoScore:      oceano.Score,
		OceanoBand:       scoreBand(oceano.Score),
		OceanoReasons:    oceano.Reasons,
		GeneratedAt:      now,
	}

	if err := e.Events.RecordAlertSent(ctx, eventID, key, now); err != nil {
		return false, fmt.Errorf("alerts: record cooldown state: %w", err)
	}

	if e.Sink != nil {
		if err := e.Sink.Send(ctx, alert); err != nil {
			return false, fmt.Errorf("alerts: dispatch: %w", err)
		}
	}
	if e.Log != nil {
		e.Log.WithContext(ctx).WithField("event_id", eventID).WithField("alert_key", key).Info("alerts: sent")
	}
	return true, nil
}

// scoreBand implements spec.md §4.11's "score band (score // 5)": floor
// division into bands of five points, matching the original's
// int(float(score) // 5).
func scoreBand(score float64) int {
	return int(math.Floor(score / 5))
}

type hashInput struct {
	EventID        int64    `json:"event_id"`
	PlantaoBand    int      `json:"plantao_band"`
	OceanoBand     int      `json:"oceano_band"`
	PlantaoReasons []string `json:"plantao_reasons"`
	OceanoReasons  []string `json:"oceano_reasons"`
}

func alertKey(eventID int64, plantao, oceano postgres.EventScore) string {
	in := hashInput{
		EventID:        eventID,
		PlantaoBand:    scoreBand(plantao.Score),
		OceanoBand:     scoreBand(oceano.Score),
		PlantaoReasons: plantao.Reasons,
		OceanoReasons:  oceano.Reasons,
	}
	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
