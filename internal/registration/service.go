package registration

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelborellis/mcp-registry/internal/audit"
	"github.com/joelborellis/mcp-registry/internal/registration/metrics"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// List pagination bounds. A request above MaxListLimit is clamped, not
// rejected.
const (
	DefaultListLimit = 10
	MaxListLimit     = 1000
)

// AuditLogger appends ledger entries inside the caller's transaction.
type AuditLogger interface {
	LogAction(ctx context.Context, e audit.Entry) error
}

// Service owns the registration lifecycle. Every mutation runs inside
// one transaction together with its audit entry, so a state change and
// its record are indivisible.
type Service struct {
	store    Store
	auditLog AuditLogger
	runner   tx.Runner
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func NewService(store Store, auditLog AuditLogger, runner tx.Runner, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		auditLog: auditLog,
		runner:   runner,
		metrics:  m,
		tracer:   otel.Tracer("mcp-registry/registration"),
	}
}

// Create validates the submission, inserts it as Pending and appends
// the Created ledger entry, all in one transaction. A taken endpoint
// URL is a conflict, never a silent overwrite.
func (s *Service) Create(ctx context.Context, sub Submission, submitterID id.UserID) (*Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.create")
	defer span.End()

	reg, err := New(sub, submitterID, requestcontext.Now(ctx))
	if err != nil {
		return nil, s.failSpan(span, err)
	}
	span.SetAttributes(attribute.String("registration.id", reg.ID.String()))

	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, reg); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "endpoint url is already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert registration")
		}
		return s.auditLog.LogAction(ctx, audit.Entry{
			RegistrationID: reg.ID,
			Action:         audit.ActionCreated,
			ActorID:        submitterID,
			NewStatus:      statusPtr(reg.Status),
			Metadata: map[string]any{
				"endpoint_url":  reg.EndpointURL,
				"endpoint_name": reg.EndpointName,
				"owner_contact": reg.OwnerContact,
				"tool_count":    len(reg.Tools),
			},
		})
	})
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeConflict:
			s.metrics.IncrementSubmitted("conflict")
		default:
			s.metrics.IncrementSubmitted("error")
		}
		return nil, s.failSpan(span, err)
	}

	s.metrics.IncrementSubmitted("created")
	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// Decide moves a Pending registration to Approved or Rejected via a
// conditional update, then appends the matching ledger entry. The
// losing side of a decision race gets invalid-state, not a lost update.
func (s *Service) Decide(ctx context.Context, regID id.RegistrationID, status Status, approverID id.UserID, reason string) (*Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.decide",
		trace.WithAttributes(
			attribute.String("registration.id", regID.String()),
			attribute.String("registration.decision", string(status)),
		))
	defer span.End()

	if !status.Decidable() {
		return nil, s.failSpan(span, dErrors.New(dErrors.CodeBadRequest, "decision must be Approved or Rejected"))
	}

	var decided *Registration
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		decided, err = s.store.DecidePending(ctx, regID, status, approverID, requestcontext.Now(ctx))
		if err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "registration not found")
			case errors.Is(err, sentinel.ErrInvalidState):
				return dErrors.New(dErrors.CodeInvalidState, "registration is not pending")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide registration")
		}

		action := audit.ActionApproved
		if status == StatusRejected {
			action = audit.ActionRejected
		}
		metadata := map[string]any{"approver_id": approverID.String()}
		if reason != "" {
			metadata["reason"] = reason
		}
		return s.auditLog.LogAction(ctx, audit.Entry{
			RegistrationID: regID,
			Action:         action,
			ActorID:        approverID,
			PreviousStatus: statusPtr(StatusPending),
			NewStatus:      statusPtr(status),
			Metadata:       metadata,
		})
	})
	if err != nil {
		return nil, s.failSpan(span, err)
	}

	s.metrics.IncrementDecision(string(status))
	span.SetStatus(codes.Ok, "")
	return decided, nil
}

// Delete removes a registration, recording a snapshot of the removed
// record in the ledger first. The ledger write precedes the physical
// delete inside one transaction: a crash can leave a stale row, never
// a missing audit trail.
func (s *Service) Delete(ctx context.Context, regID id.RegistrationID, deleterID id.UserID) error {
	ctx, span := s.tracer.Start(ctx, "registration.delete",
		trace.WithAttributes(attribute.String("registration.id", regID.String())))
	defer span.End()

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		reg, err := s.store.FindByID(ctx, regID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "registration not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
		}

		metadata := map[string]any{
			"endpoint_url":  reg.EndpointURL,
			"endpoint_name": reg.EndpointName,
			"prior_status":  string(reg.Status),
			"submitter_id":  reg.SubmitterID.String(),
		}
		if reg.ApproverID != nil {
			metadata["approver_id"] = reg.ApproverID.String()
		}
		err = s.auditLog.LogAction(ctx, audit.Entry{
			RegistrationID: regID,
			Action:         audit.ActionDeleted,
			ActorID:        deleterID,
			PreviousStatus: statusPtr(reg.Status),
			Metadata:       metadata,
		})
		if err != nil {
			return err
		}

		if err := s.store.Delete(ctx, regID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete registration")
		}
		return nil
	})
	if err != nil {
		return s.failSpan(span, err)
	}

	s.metrics.IncrementDeleted()
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID returns the registration or not-found. No side effects.
func (s *Service) GetByID(ctx context.Context, regID id.RegistrationID) (*Registration, error) {
	reg, err := s.store.FindByID(ctx, regID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

// GetByURL is an exact, case-sensitive lookup for automation clients
// polling their submission's fate.
func (s *Service) GetByURL(ctx context.Context, endpointURL string) (*Registration, error) {
	if endpointURL == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "endpoint url is required")
	}
	reg, err := s.store.FindByURL(ctx, endpointURL)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registration")
	}
	return reg, nil
}

// List returns the matching page newest-first plus the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Registration, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "unknown status filter")
	}
	if f.Offset < 0 {
		return nil, 0, dErrors.New(dErrors.CodeBadRequest, "offset must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}

	page, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list registrations")
	}
	return page, total, nil
}

func (s *Service) failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func statusPtr(s Status) *string {
	v := string(s)
	return &v
}
