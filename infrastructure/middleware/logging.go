package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogging assigns a trace id (reusing an inbound X-Trace-Id when
// present), logs the request outcome, and records HTTP metrics.
func RequestLogging(log *logging.Logger, m *metrics.Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ctx := logging.ContextWithTraceID(r.Context(), traceID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Trace-Id", traceID)

			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			log.WithContext(ctx).WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": elapsed.Milliseconds(),
			}).Info("http request")

			if m != nil {
				status := http.StatusText(rec.status)
				m.HTTPRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
				m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
			}
		})
	}
}
