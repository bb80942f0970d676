package testutil

import (
	"net/http"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// WithPrincipal attaches an authenticated principal to the request
// context, simulating what the auth middleware does.
func WithPrincipal(req *http.Request, p requestcontext.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// AdminPrincipal builds a principal carrying the admin flag.
func AdminPrincipal() requestcontext.Principal {
	return requestcontext.Principal{
		UserID:      id.NewUserID(),
		Email:       "admin@example.com",
		DisplayName: "Admin",
		IsAdmin:     true,
	}
}

// UserPrincipal builds a plain authenticated principal.
func UserPrincipal() requestcontext.Principal {
	return requestcontext.Principal{
		UserID:      id.NewUserID(),
		Email:       "user@example.com",
		DisplayName: "User",
	}
}

// WithFixedTime pins the request-scoped clock, making timestamps
// deterministic.
func WithFixedTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
