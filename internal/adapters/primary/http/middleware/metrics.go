package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RequestRecorder counts served HTTP requests.
type RequestRecorder interface {
	RecordRequest(method, route string, status int)
}

// Metrics returns a middleware that records each request under its chi
// route pattern, so path parameters do not explode label cardinality.
func Metrics(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			recorder.RecordRequest(r.Method, route, wrapped.statusCode)
		})
	}
}
