package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request id to the request context and response
// headers, honoring an incoming X-Request-Id when the caller sends one.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx := logg.WithRequestID(r.Context(), requestID)
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
