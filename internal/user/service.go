package user

import (
	"context"
	"errors"

	"github.com/joelborellis/mcp-registry/internal/identity"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Service owns directory logic: synchronizing users from verified
// claims and managing the admin flag.
type Service struct {
	store Store
	// reconcileAdmin enables directory admin-flag sync from the
	// identity provider's admin group on each authenticated request.
	// Disabled when no admin group is configured, so the flag stays
	// managed purely through the directory API.
	reconcileAdmin bool
}

func NewService(store Store, reconcileAdmin bool) *Service {
	return &Service{store: store, reconcileAdmin: reconcileAdmin}
}

// ResolvePrincipal upserts the caller's directory record from verified
// claims and returns the principal for the request context. When
// admin-group reconciliation is on, a drifted admin flag is corrected
// before the principal is built, so privileges granted or revoked at
// the identity provider take effect on the next request.
func (s *Service) ResolvePrincipal(ctx context.Context, claims *identity.Claims, adminGroupMember bool) (requestcontext.Principal, error) {
	now := requestcontext.Now(ctx)
	stored, err := s.store.Upsert(ctx, &User{
		ID:          id.NewUserID(),
		ExternalID:  claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return requestcontext.Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sync user record")
	}

	if s.reconcileAdmin && stored.IsAdmin != adminGroupMember {
		if err := s.store.SetAdminFlag(ctx, stored.ID, adminGroupMember, now); err != nil {
			return requestcontext.Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reconcile admin flag")
		}
		stored.IsAdmin = adminGroupMember
	}

	return requestcontext.Principal{
		UserID:      stored.ID,
		Email:       stored.Email,
		DisplayName: stored.DisplayName,
		IsAdmin:     stored.IsAdmin,
	}, nil
}

// GetByID returns the directory record for userID.
func (s *Service) GetByID(ctx context.Context, userID id.UserID) (*User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

// SetAdminFlag grants or revokes directory admin privileges and
// returns the updated record.
func (s *Service) SetAdminFlag(ctx context.Context, userID id.UserID, isAdmin bool) (*User, error) {
	err := s.store.SetAdminFlag(ctx, userID, isAdmin, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update admin flag")
	}
	return s.GetByID(ctx, userID)
}
