package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// errorResponse is the standard JSON error body, grounded on
// internal/httputil.ErrorResponse.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func badRequest(w http.ResponseWriter, message string) { writeError(w, http.StatusBadRequest, message) }

func notFound(w http.ResponseWriter, message string) { writeError(w, http.StatusNotFound, message) }

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// eventIDParam parses the {event_id} path variable, writing a 400 and
// returning ok=false on a malformed id.
func eventIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["event_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(w, "invalid event_id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	return defaultVal
}

func queryFloat(r *http.Request, key string, defaultVal float64) float64 {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.ParseFloat(val, 64); err == nil {
		return n
	}
	return defaultVal
}
