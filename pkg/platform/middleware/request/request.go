// Package request assigns each inbound request a unique identifier,
// echoed in the X-Request-ID response header and attached to the
// context for log correlation.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// RequestID generates a request identifier unless the caller supplied
// one, and propagates it through context and response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request identifier from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
