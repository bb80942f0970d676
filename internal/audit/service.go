package audit

import (
	"context"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Query pagination bounds. A request above MaxQueryLimit is clamped,
// not rejected.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// Service appends ledger entries on behalf of domain services and
// answers admin queries over the ledger.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// LogAction appends one ledger entry inside the caller's transaction.
// Client metadata from the request context is folded into the entry's
// metadata map so the ledger records where an action came from.
func (s *Service) LogAction(ctx context.Context, e Entry) error {
	if !e.Action.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown audit action")
	}
	if e.RegistrationID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "audit entry requires a registration id")
	}
	if e.ActorID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "audit entry requires an actor id")
	}

	e.ID = id.NewAuditLogID()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = requestcontext.Now(ctx)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		e.Metadata["client_ip"] = ip
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		e.Metadata["user_agent"] = ua
	}

	if err := s.store.Append(ctx, &e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}
	return nil
}

// QueryLogs returns ledger entries matching the filter, newest first,
// plus the total match count for pagination.
func (s *Service) QueryLogs(ctx context.Context, f Filter) ([]*Entry, int, error) {
	if f.Action != "" && !f.Action.Valid() {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "unknown audit action")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, dErrors.New(dErrors.CodeInvalidRange, "time range end precedes start")
	}
	if f.Offset < 0 {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "offset must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}

	entries, total, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}
	return entries, total, nil
}
