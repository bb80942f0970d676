// Package auth authenticates inbound requests: it validates the bearer
// token, synchronizes the caller into the user directory, and attaches
// the resulting principal to the request context.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/joelborellis/mcp-registry/internal/identity"
	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// TokenVerifier validates a raw bearer token and extracts its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*identity.Claims, error)
}

// Directory resolves verified claims to a directory principal,
// creating or updating the user record as a side effect.
type Directory interface {
	ResolvePrincipal(ctx context.Context, claims *identity.Claims, adminGroupMember bool) (requestcontext.Principal, error)
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token. On
// success the caller is upserted into the directory, admin-group
// membership is reconciled, and the principal is stored in the context.
func RequireAuth(verifier TokenVerifier, directory Directory, adminGroupID string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			rawToken, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || rawToken == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := verifier.Verify(ctx, rawToken)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			adminMember := adminGroupID != "" && slices.Contains(claims.Groups, adminGroupID)
			principal, err := directory.ResolvePrincipal(ctx, claims, adminMember)
			if err != nil {
				logger.ErrorContext(ctx, "failed to resolve principal",
					"error", err,
					"external_id", claims.Subject,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to authenticate request")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
