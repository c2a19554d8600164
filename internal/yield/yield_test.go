package yield

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/internal/source"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return New(nil, m, nil)
}

func counterValue(t *testing.T, m *metrics.Metrics, sourceID string) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.StarvationIncidentsTotal.WithLabelValues(sourceID).Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return out.GetCounter().GetValue()
}

func seed(y *Monitor, sourceID string, ts time.Time, anchors, statusCode int) {
	y.mu.Lock()
	y.fallback[sourceID] = append(y.fallback[sourceID], point{TS: ts, AnchorsCount: anchors, StatusCode: statusCode})
	y.mu.Unlock()
}

// businessHoursNow is a fixed Tuesday 14:00 UTC reference instant, used by
// the tests below that pin "now" so their assertions never depend on the
// wall clock; the metric test uses time.Now and the off-hours test uses its
// own 03:00 instant.
var businessHoursNow = time.Date(2026, 7, 28, 14, 0, 0, 0, time.UTC)

func TestCheckStarvation_RollingCollapseDetected(t *testing.T) {
	y := newTestMonitor(t)
	const sourceID = "src1"

	for i := 70; i < 90; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Minute), 3, 200)
	}
	for i := 0; i < 5; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Minute), 0, 200)
	}

	if !y.checkStarvationAt(sourceID, businessHoursNow) {
		t.Fatalf("expected rolling collapse to be detected")
	}
}

func TestCheckStarvation_HealthySourceNotFlagged(t *testing.T) {
	y := newTestMonitor(t)
	const sourceID = "src2"

	for i := 0; i < 30; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Minute), 3, 200)
	}

	if y.checkStarvationAt(sourceID, businessHoursNow) {
		t.Fatalf("expected a steadily-yielding source to not be flagged")
	}
}

func TestCheckStarvation_InsufficientHistoryFallsBackToAllZeroRule(t *testing.T) {
	y := newTestMonitor(t)
	const sourceID = "src3"

	for i := 0; i < 5; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Minute), 0, 200)
	}

	if !y.checkStarvationAt(sourceID, businessHoursNow) {
		t.Fatalf("expected the fallback rule (all-recent-zero, no mature baseline) to flag starvation")
	}
}

func TestCheckStarvation_IncrementsMetricOnDetection(t *testing.T) {
	y := newTestMonitor(t)
	now := time.Now().UTC()
	const sourceID = "src4"
	for i := 70; i < 90; i++ {
		seed(y, sourceID, now.Add(-time.Duration(i)*time.Minute), 3, 200)
	}
	for i := 0; i < 5; i++ {
		seed(y, sourceID, now.Add(-time.Duration(i)*time.Minute), 0, 200)
	}

	if !y.CheckStarvation(sourceID) {
		t.Fatalf("expected detection")
	}
	count := counterValue(t, y.Metrics, sourceID)
	if count != 1 {
		t.Fatalf("expected the starvation-incidents counter to increment once, got %v", count)
	}
}

func TestCheckStarvation_CalendarBaselineDetectsSameHourCollapse(t *testing.T) {
	y := newTestMonitor(t)
	const sourceID = "src5"
	y.Configure(sourceID, source.Observability{
		CalendarProfile: &source.CalendarProfile{TimezoneName: "UTC"},
	})

	// Many off-hour, zero-anchor points drag the overall historical
	// average below the rolling-collapse rule's 1.0 threshold, while the
	// same-hour (14:00 UTC) bucket stays consistently productive - only
	// the calendar baseline should catch the collapse in the last hour.
	for i := 2; i < 200; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Hour), 0, 200)
	}
	for d := 1; d <= 10; d++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(d)*24*time.Hour), 3, 200)
	}
	for i := 0; i < 6; i++ {
		seed(y, sourceID, businessHoursNow.Add(-time.Duration(i)*time.Minute), 0, 200)
	}

	if !y.checkStarvationAt(sourceID, businessHoursNow) {
		t.Fatalf("expected the same-hour calendar baseline to catch the collapse")
	}
}

func TestCheckStarvation_CalendarBaselineBusinessHoursSuppressesOffHours(t *testing.T) {
	y := newTestMonitor(t)
	const sourceID = "src6"
	y.Configure(sourceID, source.Observability{
		CalendarProfile: &source.CalendarProfile{BusinessHoursOnly: true, TimezoneName: "UTC"},
	})

	offHoursNow := time.Date(2026, 7, 28, 3, 0, 0, 0, time.UTC)
	for i := 2; i < 200; i++ {
		seed(y, sourceID, offHoursNow.Add(-time.Duration(i)*time.Hour), 0, 200)
	}
	for d := 1; d <= 10; d++ {
		seed(y, sourceID, offHoursNow.Add(-time.Duration(d)*24*time.Hour), 3, 200)
	}
	for i := 0; i < 6; i++ {
		seed(y, sourceID, offHoursNow.Add(-time.Duration(i)*time.Minute), 0, 200)
	}

	if y.checkStarvationAt(sourceID, offHoursNow) {
		t.Fatalf("expected business-hours suppression to silence an off-hours-only signal")
	}
}
