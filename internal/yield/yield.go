// Package yield implements the per-source yield/starvation monitor of
// spec.md §4.12: a bounded ring of (timestamp, anchors_count, status_code)
// points per source, and a rolling/calendar baseline comparison that flags
// DATA_STARVATION when a source keeps answering 200 OK but stops producing
// evidence anchors. Grounded on
// original_source/backend/app/health.py's YieldMonitor
// (update_yield/check_starvation: Redis list storage with an in-process
// deque fallback, the same 5-recent/10-historical thresholds, the same
// recent_avg<=0.1 && historical_avg>=1.0 rolling-collapse rule, and the
// same same-hour calendar-baseline comparison), adapted to this package's
// CalendarProfile (business-hours-only + timezone) instead of a named
// profile string.
package yield

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/source"
)

// MaxPoints bounds the ring per source (spec.md §4.12: "≤500 entries").
const MaxPoints = 500

// TTL is how long a source's yield history survives in Redis (spec.md
// §4.12: "72h TTL").
const TTL = 72 * time.Hour

// DefaultWindowMins is check_starvation's default recent-window size
// (original_source/backend/app/health.py's last_200_ok_window_mins=60).
const DefaultWindowMins = 60

type point struct {
	TS           time.Time `json:"ts"`
	AnchorsCount int       `json:"anchors_count"`
	StatusCode   int       `json:"status_code"`
}

// calendarConfig is the per-source calendar-baseline configuration,
// derived from source.Observability.CalendarProfile by Configure.
type calendarConfig struct {
	businessHoursOnly bool
	location          *time.Location
}

// Monitor implements internal/organizer.YieldMonitor. A nil *redis.Client
// is valid: history is kept in the in-process fallback only, same as
// infrastructure/cache.RedisStore's degrade-on-error convention.
type Monitor struct {
	client   *redis.Client
	Metrics  *metrics.Metrics
	Log      *logging.Logger

	mu       sync.Mutex
	fallback map[string][]point

	configMu sync.RWMutex
	configs  map[string]calendarConfig
	windows  map[string]int
}

func New(client *redis.Client, m *metrics.Metrics, log *logging.Logger) *Monitor {
	return &Monitor{
		client:   client,
		Metrics:  m,
		Log:      log,
		fallback: make(map[string][]point),
		configs:  make(map[string]calendarConfig),
		windows:  make(map[string]int),
	}
}

// Configure registers a source's observability profile (window and
// optional calendar baseline), read once at bootstrap from
// source.Profile.Observability. Unconfigured sources use
// DefaultWindowMins and no calendar baseline.
func (y *Monitor) Configure(sourceID string, obs source.Observability) {
	y.configMu.Lock()
	defer y.configMu.Unlock()

	window := obs.WindowH * 60
	if window <= 0 {
		window = DefaultWindowMins
	}
	y.windows[sourceID] = window

	if obs.CalendarProfile == nil {
		delete(y.configs, sourceID)
		return
	}
	loc := time.UTC
	if obs.CalendarProfile.TimezoneName != "" {
		if l, err := time.LoadLocation(obs.CalendarProfile.TimezoneName); err == nil {
			loc = l
		} else if y.Log != nil {
			y.Log.WithField("source_id", sourceID).WithField("timezone", obs.CalendarProfile.TimezoneName).
				Warn("yield: unknown timezone in calendar profile, defaulting to UTC")
		}
	}
	y.configs[sourceID] = calendarConfig{
		businessHoursOnly: obs.CalendarProfile.BusinessHoursOnly,
		location:          loc,
	}
}

func (y *Monitor) windowFor(sourceID string) int {
	y.configMu.RLock()
	defer y.configMu.RUnlock()
	if w, ok := y.windows[sourceID]; ok {
		return w
	}
	return DefaultWindowMins
}

func (y *Monitor) calendarFor(sourceID string) (calendarConfig, bool) {
	y.configMu.RLock()
	defer y.configMu.RUnlock()
	cfg, ok := y.configs[sourceID]
	return cfg, ok
}

func redisKey(sourceID string) string { return "newsradar:yield:" + sourceID }

// UpdateYield records one fetch's anchor yield, implementing
// internal/organizer.YieldMonitor.
func (y *Monitor) UpdateYield(sourceID string, anchorsFound int, statusCode int) {
	if anchorsFound < 0 {
		anchorsFound = 0
	}
	p := point{TS: time.Now().UTC(), AnchorsCount: anchorsFound, StatusCode: statusCode}

	if y.client != nil {
		ctx := context.Background()
		data, err := json.Marshal(p)
		if err == nil {
			key := redisKey(sourceID)
			pipe := y.client.TxPipeline()
			pipe.RPush(ctx, key, data)
			pipe.LTrim(ctx, key, -MaxPoints, -1)
			pipe.Expire(ctx, key, TTL)
			if _, err := pipe.Exec(ctx); err == nil {
				return
			} else if y.Log != nil {
				y.Log.WithField("source_id", sourceID).WithError(err).
					Warn("yield: redis write failed, degrading to in-memory fallback")
			}
		}
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	bucket := append(y.fallback[sourceID], p)
	if len(bucket) > MaxPoints {
		bucket = bucket[len(bucket)-MaxPoints:]
	}
	y.fallback[sourceID] = bucket
}

func (y *Monitor) history(sourceID string) []point {
	if y.client != nil {
		ctx := context.Background()
		raw, err := y.client.LRange(ctx, redisKey(sourceID), 0, -1).Result()
		if err == nil {
			out := make([]point, 0, len(raw))
			for _, r := range raw {
				var p point
				if json.Unmarshal([]byte(r), &p) == nil {
					out = append(out, p)
				}
			}
			return out
		}
		if y.Log != nil {
			y.Log.WithField("source_id", sourceID).WithError(err).
				Warn("yield: redis read failed, falling back to in-memory history")
		}
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	out := make([]point, len(y.fallback[sourceID]))
	copy(out, y.fallback[sourceID])
	return out
}

// CheckStarvation reports whether sourceID's recent yield has collapsed,
// implementing internal/organizer.YieldMonitor. A positive detection
// increments the starvation-incidents metric (spec.md §4.12: "produces a
// DATA_STARVATION incident with source domain" - sourceID doubles as the
// incident's identifying label here).
func (y *Monitor) CheckStarvation(sourceID string) bool {
	if y.checkStarvationAt(sourceID, time.Now().UTC()) {
		if y.Metrics != nil {
			y.Metrics.StarvationIncidentsTotal.WithLabelValues(sourceID).Inc()
		}
		return true
	}
	return false
}

func (y *Monitor) checkStarvation(sourceID string) bool {
	return y.checkStarvationAt(sourceID, time.Now().UTC())
}

// checkStarvationAt is check_starvation parameterized on the reference
// instant, so tests can pin "now" instead of racing the wall clock.
func (y *Monitor) checkStarvationAt(sourceID string, now time.Time) bool {
	history := y.history(sourceID)
	if len(history) == 0 {
		return false
	}

	cutoff := now.Add(-time.Duration(y.windowFor(sourceID)) * time.Minute)

	var recent, older []point
	for _, p := range history {
		if !p.TS.Before(cutoff) {
			recent = append(recent, p)
		} else {
			older = append(older, p)
		}
	}

	if len(recent) < 5 {
		return false
	}
	recent200 := filter200(recent)
	if len(recent200) < 5 {
		return false
	}
	recentAvg := averageAnchors(recent200)

	historical200 := filter200(older)
	if len(historical200) < 10 {
		return allZero(recent200)
	}
	historicalAvg := averageAnchors(historical200)

	if recentAvg <= 0.1 && historicalAvg >= 1.0 {
		return true
	}

	cfg, ok := y.calendarFor(sourceID)
	if !ok {
		return false
	}
	loc := cfg.location
	if loc == nil {
		loc = time.UTC
	}
	localNow := now.In(loc)
	if cfg.businessHoursOnly {
		isWeekend := localNow.Weekday() == time.Saturday || localNow.Weekday() == time.Sunday
		if isWeekend || localNow.Hour() < 7 || localNow.Hour() > 20 {
			return false
		}
	}

	var calendarBaseline []point
	for _, p := range historical200 {
		local := p.TS.In(loc)
		if local.Hour() != localNow.Hour() {
			continue
		}
		if cfg.businessHoursOnly {
			pIsWeekend := local.Weekday() == time.Saturday || local.Weekday() == time.Sunday
			nowIsWeekend := localNow.Weekday() == time.Saturday || localNow.Weekday() == time.Sunday
			if pIsWeekend != nowIsWeekend {
				continue
			}
		}
		calendarBaseline = append(calendarBaseline, p)
	}
	if len(calendarBaseline) < 8 {
		return false
	}
	calendarAvg := averageAnchors(calendarBaseline)
	if calendarAvg >= 1.0 && recentAvg <= max(0.1, calendarAvg*0.1) {
		return true
	}
	return false
}

func filter200(points []point) []point {
	out := make([]point, 0, len(points))
	for _, p := range points {
		if p.StatusCode == 200 {
			out = append(out, p)
		}
	}
	return out
}

func averageAnchors(points []point) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0
	for _, p := range points {
		sum += p.AnchorsCount
	}
	return float64(sum) / float64(len(points))
}

func allZero(points []point) bool {
	for _, p := range points {
		if p.AnchorsCount != 0 {
			return false
		}
	}
	return true
}
