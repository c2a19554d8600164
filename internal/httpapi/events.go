package httpapi

import (
	"errors"
	"net/http"

	"github.com/pautaradar/newsradar/internal/scoring"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// handleListEvents serves /api/events, the plain canonical-events feed
// (spec.md §6), ordered like the Plantão feed since both read the same
// materialized score_plantao ordering.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(queryInt(r, "limit", defaultListLimit))
	events, err := s.Events.ActiveEvents(r.Context(), limit)
	if err != nil {
		internalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handlePlantao serves /api/plantao: canonical events ranked by their
// materialized Plantão score (spec.md §6).
func (s *Server) handlePlantao(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(queryInt(r, "limit", defaultListLimit))
	events, err := s.Events.ActiveEvents(r.Context(), limit)
	if err != nil {
		internalError(w, "failed to list plantao events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleOceanoAzul serves /api/oceano-azul?min_score=…: canonical events
// whose latest Oceano Azul score clears the threshold (spec.md §6).
func (s *Server) handleOceanoAzul(w http.ResponseWriter, r *http.Request) {
	minScore := queryFloat(r, "min_score", 0)
	limit := clampLimit(queryInt(r, "limit", defaultListLimit))
	events, err := s.Events.EventsByOceanoScore(r.Context(), scoring.KindOceano, minScore, limit)
	if err != nil {
		internalError(w, "failed to list oceano azul events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// eventDetail is /api/events/{id}'s response shape; it carries a tombstone
// redirect hint when the event was merged away (spec.md §6).
type eventDetail struct {
	Event           postgres.Event       `json:"event"`
	PlantaoScore    *postgres.EventScore `json:"plantao_score,omitempty"`
	OceanoScore     *postgres.EventScore `json:"oceano_score,omitempty"`
	State           *postgres.EventState `json:"state,omitempty"`
	RedirectEventID *int64               `json:"redirect_event_id,omitempty"`
}

// handleEventDetail serves /api/events/{id} (spec.md §6).
func (s *Server) handleEventDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	ev, err := s.Events.GetEvent(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		notFound(w, "event not found")
		return
	}
	if err != nil {
		internalError(w, "failed to load event")
		return
	}

	detail := eventDetail{Event: ev}
	if ev.CanonicalEventID != nil {
		detail.RedirectEventID = ev.CanonicalEventID
	}

	if sc, err := s.Events.LatestScore(r.Context(), id, scoring.KindPlantao); err == nil {
		detail.PlantaoScore = &sc
	}
	if sc, err := s.Events.LatestScore(r.Context(), id, scoring.KindOceano); err == nil {
		detail.OceanoScore = &sc
	}
	if st, err := s.Events.GetState(r.Context(), id); err == nil {
		detail.State = &st
	}

	writeJSON(w, http.StatusOK, detail)
}

// handleStateHistory serves /api/events/{id}/state-history (spec.md §6).
// event_states keeps one current row per event rather than a full change
// log, so this returns that single row as a one-element history.
func (s *Server) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	st, err := s.Events.GetState(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		notFound(w, "event not found")
		return
	}
	if err != nil {
		internalError(w, "failed to load state history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": []postgres.EventState{st}})
}

// handleMergeAudit serves /api/events/{id}/merge-audit (spec.md §6).
func (s *Server) handleMergeAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	audits, err := s.Events.MergeAuditsForEvent(r.Context(), id)
	if err != nil {
		internalError(w, "failed to load merge audit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"merge_audit": audits})
}

// handleFeedbackHistory serves /api/events/{id}/feedback (spec.md §6).
func (s *Server) handleFeedbackHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	fb, err := s.Events.FeedbackForEvent(r.Context(), id)
	if err != nil {
		internalError(w, "failed to load feedback history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": fb})
}
