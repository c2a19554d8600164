package middleware

import (
	"encoding/json"
	"net/http"

	svcerr "github.com/pautaradar/newsradar/infrastructure/errors"
)

// WriteError renders err as the HTTP surface's standard error body
// (spec.md §7): a *svcerr.ServiceError maps to its own HTTPStatus/Code, any
// other error becomes a generic 500 "Internal".
func WriteError(w http.ResponseWriter, err error) {
	var se *svcerr.ServiceError
	if !svcerr.As(err, &se) {
		se = svcerr.Internal("unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatus)
	body := map[string]interface{}{
		"code":    se.Code,
		"message": se.Message,
	}
	if len(se.Details) > 0 {
		body["details"] = se.Details
	}
	_ = json.NewEncoder(w).Encode(body)
}
