// Package httpapi implements the HTTP surface of spec.md §6: the CMS draft
// builder, the editorial feedback endpoint, read-only query endpoints, the
// live event stream, and liveness/metrics. Grounded on
// services/mixer/handlers.go's registerRoutes/gorilla-mux convention and
// internal/httputil's JSON response helpers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pautaradar/newsradar/infrastructure/logging"
	"github.com/pautaradar/newsradar/infrastructure/metrics"
	"github.com/pautaradar/newsradar/infrastructure/middleware"
	"github.com/pautaradar/newsradar/internal/editorial"
	"github.com/pautaradar/newsradar/internal/eventstate"
	"github.com/pautaradar/newsradar/internal/pushstream"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// EventStore is the slice of postgres.EventStore the HTTP surface needs
// beyond what editorial.EventStore and pushstream.EventStore already
// narrow, kept as one interface so handlers take a single collaborator.
type EventStore interface {
	editorial.EventStore
	pushstream.EventStore
	ActiveEvents(ctx context.Context, limit int) ([]postgres.Event, error)
	EventsByOceanoScore(ctx context.Context, kind string, minScore float64, limit int) ([]postgres.Event, error)
	LatestScore(ctx context.Context, eventID int64, kind string) (postgres.EventScore, error)
	MergeAuditsForEvent(ctx context.Context, eventID int64) ([]postgres.MergeAudit, error)
	FeedbackForEvent(ctx context.Context, eventID int64) ([]postgres.FeedbackEvent, error)
	DocumentsForEvent(ctx context.Context, eventID int64) ([]postgres.Document, error)
}

// DocumentStore is the slice of postgres.DocumentStore the draft builder needs.
type DocumentStore interface {
	AnchorsForDocument(ctx context.Context, documentID int64) ([]postgres.DocAnchor, error)
	EvidenceFeaturesForDocument(ctx context.Context, documentID int64) ([]postgres.DocEvidenceFeature, error)
	EntityMentionsForDocument(ctx context.Context, documentID int64) ([]postgres.EntityMention, error)
}

// Server wires the HTTP surface's collaborators: the read/write event
// store, the editorial action service, the push stream, and observability.
type Server struct {
	Events      EventStore
	Documents   DocumentStore
	Editorial   *editorial.Service
	Stream      *pushstream.Streamer
	SLO         eventstate.SLOConfig
	CORSOrigins []string
	Log         *logging.Logger
	Metrics     *metrics.Metrics

	router *mux.Router
}

// New builds a Server and registers every route of spec.md §6.
func New(events EventStore, documents DocumentStore, ed *editorial.Service, stream *pushstream.Streamer, slo eventstate.SLOConfig, corsOrigins []string, log *logging.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		Events:      events,
		Documents:   documents,
		Editorial:   ed,
		Stream:      stream,
		SLO:         slo,
		CORSOrigins: corsOrigins,
		Log:         log,
		Metrics:     m,
		router:      mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Router returns the underlying mux.Router, e.g. for http.ListenAndServe.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) registerRoutes() {
	s.router.Use(middleware.Recovery(s.Log))
	s.router.Use(middleware.CORS(s.CORSOrigins))
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/cms/draft/{event_id}", s.handleDraft).Methods(http.MethodPost)
	s.router.HandleFunc("/feedback/{event_id}/action", s.handleFeedbackAction).Methods(http.MethodPost)

	s.router.HandleFunc("/api/events", s.handleListEvents).Methods(http.MethodGet)
	s.router.HandleFunc("/api/plantao", s.handlePlantao).Methods(http.MethodGet)
	s.router.HandleFunc("/api/oceano-azul", s.handleOceanoAzul).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/{event_id}", s.handleEventDetail).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/{event_id}/state-history", s.handleStateHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/{event_id}/merge-audit", s.handleMergeAudit).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/{event_id}/feedback", s.handleFeedbackHistory).Methods(http.MethodGet)

	s.router.HandleFunc("/events/stream", s.handleStream).Methods(http.MethodGet)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		s.Metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, http.StatusText(rec.status)).Inc()
		s.Metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
