// Package middleware provides HTTP middleware shared by all routes.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"event-router/internal/common/logging"
)

// CorrelationIDHeader is the request and response header carrying the
// correlation id.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID attaches a correlation id to every request. An inbound
// header is propagated as-is; otherwise a fresh id is generated. The id is
// stored on the request context and echoed on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), logging.CorrelationIDKey, correlationID)
		w.Header().Set(CorrelationIDHeader, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
