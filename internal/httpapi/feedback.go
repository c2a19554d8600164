package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pautaradar/newsradar/internal/editorial"
	"github.com/pautaradar/newsradar/internal/store/postgres"
)

// feedbackBody is POST /feedback/{event_id}/action's JSON body (spec.md §6).
type feedbackBody struct {
	UserID        string          `json:"user_id,omitempty"`
	TargetEventID *int64          `json:"target_event_id,omitempty"`
	DocIDs        []int64         `json:"doc_ids,omitempty"`
	NewSummary    string          `json:"new_summary,omitempty"`
	NewLane       string          `json:"new_lane,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// feedbackResponse is the response shape spec.md §6 names:
// `{status, event_id, action, state_changed, merge?}`.
type feedbackResponse struct {
	Status       string                  `json:"status"`
	EventID      int64                   `json:"event_id"`
	Action       string                  `json:"action"`
	StateChanged bool                    `json:"state_changed"`
	Merge        *editorial.MergeOutcome `json:"merge,omitempty"`
	Split        *editorial.SplitOutcome `json:"split,omitempty"`
}

// handleFeedbackAction serves POST /feedback/{event_id}/action?action=…
// (spec.md §6), delegating to internal/editorial.Service.Apply and mapping
// its typed errors onto the 400/404/409 contract.
func (s *Server) handleFeedbackAction(w http.ResponseWriter, r *http.Request) {
	id, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		badRequest(w, "action query parameter required")
		return
	}

	var body feedbackBody
	if !decodeJSON(w, r, &body) {
		return
	}

	req := editorial.Request{
		EventID:       id,
		Action:        action,
		Actor:         body.UserID,
		TargetEventID: body.TargetEventID,
		DocIDs:        body.DocIDs,
		NewSummary:    body.NewSummary,
		NewLane:       body.NewLane,
		Detail:        body.Metadata,
	}

	res, err := s.Editorial.Apply(r.Context(), req, time.Now().UTC())
	if err == nil {
		writeJSON(w, http.StatusOK, feedbackResponse{
			Status:       "ok",
			EventID:      res.EventID,
			Action:       res.Action,
			StateChanged: res.StateChanged,
			Merge:        res.Merge,
			Split:        res.Split,
		})
		return
	}

	var verr *editorial.ValidationError
	var berr *editorial.BlockedError
	switch {
	case errors.As(err, &verr):
		badRequest(w, verr.Error())
	case errors.As(err, &berr):
		writeErrorWithCode(w, http.StatusConflict, berr.Reason, berr.Error())
	case errors.Is(err, postgres.ErrNotFound):
		notFound(w, "event or target event not found")
	default:
		if s.Log != nil {
			s.Log.WithContext(r.Context()).WithField("event_id", id).WithError(err).
				Warn("httpapi: editorial action failed")
		}
		internalError(w, "failed to apply editorial action")
	}
}
