// Package admin guards routes that require directory admin privileges.
package admin

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// RequireAdmin allows requests whose authenticated principal carries
// the admin flag. Before any directory user has the flag, a bootstrap
// X-Admin-Token matching bootstrapTokenHash (bcrypt) is accepted so the
// first admin can be promoted. An empty hash disables the bootstrap path.
func RequireAdmin(bootstrapTokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal, ok := requestcontext.PrincipalFrom(ctx)
			if ok && principal.IsAdmin {
				next.ServeHTTP(w, r)
				return
			}

			if bootstrapTokenHash != "" {
				if token := r.Header.Get("X-Admin-Token"); token != "" {
					if bcrypt.CompareHashAndPassword([]byte(bootstrapTokenHash), []byte(token)) == nil {
						next.ServeHTTP(w, r)
						return
					}
					logger.WarnContext(ctx, "admin token mismatch",
						"request_id", request.GetRequestID(ctx),
					)
				}
			}

			logger.WarnContext(ctx, "forbidden - admin privileges required",
				"user_id", principal.UserID.String(),
				"request_id", request.GetRequestID(ctx),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"admin privileges required"}`))
		})
	}
}
