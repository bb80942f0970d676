package user

import (
	"context"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
)

// Store persists directory records. Implementations return sentinel
// errors from pkg/platform/sentinel; the service translates them to
// coded domain errors.
type Store interface {
	// Upsert inserts the user keyed by external ID, or refreshes email
	// and display name on conflict. The admin flag of an existing row
	// is never touched by Upsert.
	Upsert(ctx context.Context, u *User) (*User, error)
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	// SetAdminFlag updates the admin flag, returning ErrNotFound when
	// no such user exists.
	SetAdminFlag(ctx context.Context, userID id.UserID, isAdmin bool, now time.Time) error
}
