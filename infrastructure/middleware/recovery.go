// Package middleware provides the HTTP middleware chain shared by the
// editorial API and any read-only views, adapted from the teacher's
// infrastructure/middleware package (recovery, logging, CORS, metrics).
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/pautaradar/newsradar/infrastructure/logging"
)

// Recovery converts a panic in the handler chain into a 500 response instead
// of crashing the process, logging the stack for diagnosis.
func Recovery(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithContext(r.Context()).WithField("panic", rec).
						WithField("stack", string(debug.Stack())).
						Error("recovered from panic in HTTP handler")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"code":"Internal","message":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
