package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lorrc/service-request-analytics/internal/infrastructure/logging"
)

// RequestIDHeader is the HTTP header name for request IDs
const RequestIDHeader = "X-Request-ID"

// RequestID is a middleware that ensures each request has a unique request ID.
// It checks for an existing X-Request-ID header first, and generates one if not present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		// Set the request ID in the response header
		w.Header().Set(RequestIDHeader, requestID)

		// Add to context, where the logging handler picks it up
		ctx := logging.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
