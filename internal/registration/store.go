package registration

import (
	"context"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
)

// ListFilter narrows registration listings. Zero values mean "no
// constraint"; present filters combine with AND.
type ListFilter struct {
	Status      Status
	SubmitterID id.UserID
	// Search matches name or owner contact, case-insensitive substring.
	Search string
	Limit  int
	Offset int
}

// Store persists registrations. Implementations return sentinel errors
// from pkg/platform/sentinel; the service translates them to coded
// domain errors.
type Store interface {
	// Insert persists a new registration, returning ErrConflict when
	// the endpoint URL is already taken.
	Insert(ctx context.Context, r *Registration) error
	FindByID(ctx context.Context, regID id.RegistrationID) (*Registration, error)
	// FindByURL is an exact, case-sensitive, index-backed lookup.
	FindByURL(ctx context.Context, endpointURL string) (*Registration, error)
	// DecidePending conditionally moves a Pending registration to the
	// given terminal status. The guard and the write are one statement
	// so concurrent decisions serialize on the row: the loser sees
	// ErrInvalidState (still exists, no longer Pending) or ErrNotFound.
	DecidePending(ctx context.Context, regID id.RegistrationID, status Status, approverID id.UserID, now time.Time) (*Registration, error)
	// Delete removes the row, returning ErrNotFound when absent.
	Delete(ctx context.Context, regID id.RegistrationID) error
	// List returns the matching page newest-first plus the total match
	// count ignoring pagination.
	List(ctx context.Context, f ListFilter) ([]*Registration, int, error)
}
