package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/joelborellis/mcp-registry/internal/audit"
	"github.com/joelborellis/mcp-registry/internal/registration/metrics"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Prometheus collectors register globally, so the test binary shares
// one instance across suite runs.
var testMetrics = metrics.New()

type ServiceSuite struct {
	suite.Suite

	regs       *InMemoryStore
	auditStore *audit.InMemoryStore
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.regs = NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()

	runner := tx.NewMemoryRunner(
		func() func() {
			snap := s.regs.Snapshot()
			return func() { s.regs.Restore(snap) }
		},
		func() func() {
			snap := s.auditStore.Snapshot()
			return func() { s.auditStore.Restore(snap) }
		},
	)
	s.service = NewService(s.regs, audit.NewService(s.auditStore), runner, testMetrics)
}

func (s *ServiceSuite) submission(url, name string) Submission {
	return Submission{
		EndpointURL:  url,
		EndpointName: name,
		OwnerContact: "owner@example.com",
		Tools:        []Tool{{Name: "search"}},
	}
}

func (s *ServiceSuite) entriesFor(regID id.RegistrationID) []*audit.Entry {
	entries, _, err := s.auditStore.Query(context.Background(), audit.Filter{RegistrationID: regID, Limit: 100})
	s.Require().NoError(err)
	return entries
}

func (s *ServiceSuite) TestCreate_StartsPendingWithLedgerEntry() {
	ctx := context.Background()
	submitter := id.NewUserID()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), submitter)
	s.Require().NoError(err)

	s.Equal(StatusPending, reg.Status)
	s.Nil(reg.ApproverID)
	s.Nil(reg.ApprovedAt)
	s.Equal(submitter, reg.SubmitterID)
	s.False(reg.ID.IsNil())

	entries := s.entriesFor(reg.ID)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionCreated, entries[0].Action)
	s.Nil(entries[0].PreviousStatus)
	s.Require().NotNil(entries[0].NewStatus)
	s.Equal("Pending", *entries[0].NewStatus)
	s.Equal("https://a.example/mcp", entries[0].Metadata["endpoint_url"])
}

func (s *ServiceSuite) TestCreate_DuplicateURLConflicts() {
	ctx := context.Background()

	_, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "First Server"), id.NewUserID())
	s.Require().NoError(err)

	_, err = s.service.Create(ctx, s.submission("https://a.example/mcp", "Second Server"), id.NewUserID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, total, err := s.service.List(ctx, ListFilter{})
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *ServiceSuite) TestCreate_ValidationRejectsBeforePersistence() {
	ctx := context.Background()
	submitter := id.NewUserID()

	cases := []struct {
		name string
		sub  Submission
	}{
		{"missing url", Submission{EndpointName: "A Server", OwnerContact: "o@x.com"}},
		{"non-http scheme", Submission{EndpointURL: "ftp://a.example", EndpointName: "A Server", OwnerContact: "o@x.com"}},
		{"name too short", Submission{EndpointURL: "https://a.example", EndpointName: "ab", OwnerContact: "o@x.com"}},
		{"missing contact", Submission{EndpointURL: "https://a.example", EndpointName: "A Server"}},
		{"tool without name", Submission{EndpointURL: "https://a.example", EndpointName: "A Server", OwnerContact: "o@x.com", Tools: []Tool{{Description: "no name"}}}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.Create(ctx, tc.sub, submitter)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		})
	}

	_, total, err := s.service.List(ctx, ListFilter{})
	s.Require().NoError(err)
	s.Zero(total)
}

type failingAuditLogger struct{}

func (failingAuditLogger) LogAction(context.Context, audit.Entry) error {
	return dErrors.New(dErrors.CodeInternal, "ledger unavailable")
}

func (s *ServiceSuite) TestCreate_RollsBackWhenLedgerWriteFails() {
	ctx := context.Background()
	runner := tx.NewMemoryRunner(func() func() {
		snap := s.regs.Snapshot()
		return func() { s.regs.Restore(snap) }
	})
	svc := NewService(s.regs, failingAuditLogger{}, runner, testMetrics)

	_, err := svc.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().Error(err)

	// The insert must not survive the failed ledger write.
	_, total, err := s.service.List(ctx, ListFilter{})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *ServiceSuite) TestDecide_ApproveSetsDecisionFields() {
	ctx := context.Background()
	approver := id.NewUserID()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)

	decided, err := s.service.Decide(ctx, reg.ID, StatusApproved, approver, "looks good")
	s.Require().NoError(err)

	s.Equal(StatusApproved, decided.Status)
	s.Require().NotNil(decided.ApproverID)
	s.Equal(approver, *decided.ApproverID)
	s.NotNil(decided.ApprovedAt)

	entries := s.entriesFor(reg.ID)
	s.Require().Len(entries, 2)
	// Newest first.
	s.Equal(audit.ActionApproved, entries[0].Action)
	s.Require().NotNil(entries[0].PreviousStatus)
	s.Equal("Pending", *entries[0].PreviousStatus)
	s.Require().NotNil(entries[0].NewStatus)
	s.Equal("Approved", *entries[0].NewStatus)
	s.Equal("looks good", entries[0].Metadata["reason"])
}

func (s *ServiceSuite) TestDecide_SecondDecisionFailsAsNotPending() {
	ctx := context.Background()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, reg.ID, StatusApproved, id.NewUserID(), "")
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, reg.ID, StatusRejected, id.NewUserID(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	current, err := s.service.GetByID(ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, current.Status)

	// The losing decision must not have appended a ledger entry.
	s.Len(s.entriesFor(reg.ID), 2)
}

func (s *ServiceSuite) TestDecide_MissingRegistrationIsNotFound() {
	_, err := s.service.Decide(context.Background(), id.NewRegistrationID(), StatusApproved, id.NewUserID(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDecide_PendingTargetIsRejected() {
	reg, err := s.service.Create(context.Background(), s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)

	_, err = s.service.Decide(context.Background(), reg.ID, StatusPending, id.NewUserID(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestDecide_ConcurrentDecisionsHaveOneWinner() {
	ctx := context.Background()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)

	var approveErr, rejectErr error
	g := new(errgroup.Group)
	g.Go(func() error {
		_, approveErr = s.service.Decide(ctx, reg.ID, StatusApproved, id.NewUserID(), "")
		return nil
	})
	g.Go(func() error {
		_, rejectErr = s.service.Decide(ctx, reg.ID, StatusRejected, id.NewUserID(), "")
		return nil
	})
	s.Require().NoError(g.Wait())

	winners := 0
	for _, err := range []error{approveErr, rejectErr} {
		if err == nil {
			winners++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		}
	}
	s.Equal(1, winners, "exactly one concurrent decision must win")

	current, err := s.service.GetByID(ctx, reg.ID)
	s.Require().NoError(err)
	if approveErr == nil {
		s.Equal(StatusApproved, current.Status)
	} else {
		s.Equal(StatusRejected, current.Status)
	}
	s.Len(s.entriesFor(reg.ID), 2)
}

func (s *ServiceSuite) TestDelete_LedgerSurvivesDeletion() {
	ctx := context.Background()
	deleter := id.NewUserID()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)
	_, err = s.service.Decide(ctx, reg.ID, StatusApproved, id.NewUserID(), "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(ctx, reg.ID, deleter))

	_, err = s.service.GetByID(ctx, reg.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	entries := s.entriesFor(reg.ID)
	s.Require().Len(entries, 3)
	deleted := entries[0]
	s.Equal(audit.ActionDeleted, deleted.Action)
	s.Nil(deleted.NewStatus)
	s.Require().NotNil(deleted.PreviousStatus)
	s.Equal("Approved", *deleted.PreviousStatus)
	s.Equal("https://a.example/mcp", deleted.Metadata["endpoint_url"])
	s.Equal("Approved", deleted.Metadata["prior_status"])
	s.Equal(deleter, deleted.ActorID)
}

func (s *ServiceSuite) TestDelete_MissingRegistrationIsNotFound() {
	err := s.service.Delete(context.Background(), id.NewRegistrationID(), id.NewUserID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.auditStore.Snapshot())
}

func (s *ServiceSuite) TestPendingInvariant() {
	ctx := context.Background()

	pending, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)
	s.True(pending.Status == StatusPending && pending.ApproverID == nil && pending.ApprovedAt == nil)

	toDecide, err := s.service.Create(ctx, s.submission("https://b.example/mcp", "B Server"), id.NewUserID())
	s.Require().NoError(err)
	decided, err := s.service.Decide(ctx, toDecide.ID, StatusRejected, id.NewUserID(), "")
	s.Require().NoError(err)
	s.True(decided.Status != StatusPending && decided.ApproverID != nil && decided.ApprovedAt != nil)
}

func (s *ServiceSuite) TestGetByURL_ExactMatch() {
	ctx := context.Background()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)

	found, err := s.service.GetByURL(ctx, "https://a.example/mcp")
	s.Require().NoError(err)
	s.Equal(reg.ID, found.ID)

	_, err = s.service.GetByURL(ctx, "https://A.example/mcp")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.GetByURL(ctx, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestList_FiltersAndPagination() {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	submitterA := id.NewUserID()
	submitterB := id.NewUserID()

	seed := []struct {
		url, name string
		submitter id.UserID
		at        time.Time
	}{
		{"https://openai.example/mcp", "OpenAI MCP Server", submitterA, base},
		{"https://weather.example/mcp", "Weather Server", submitterB, base.Add(time.Minute)},
		{"https://files.example/mcp", "File Tools", submitterA, base.Add(2 * time.Minute)},
	}
	for _, row := range seed {
		ctx := requestcontext.WithTime(context.Background(), row.at)
		_, err := s.service.Create(ctx, s.submission(row.url, row.name), row.submitter)
		s.Require().NoError(err)
	}

	ctx := context.Background()

	s.Run("search matches name case-insensitively", func() {
		page, total, err := s.service.List(ctx, ListFilter{Search: "openai", Limit: 10})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Require().Len(page, 1)
		s.Equal("OpenAI MCP Server", page[0].EndpointName)
	})

	s.Run("newest first", func() {
		page, total, err := s.service.List(ctx, ListFilter{})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Require().Len(page, 3)
		s.Equal("File Tools", page[0].EndpointName)
		s.Equal("OpenAI MCP Server", page[2].EndpointName)
	})

	s.Run("submitter filter combines with pagination", func() {
		page, total, err := s.service.List(ctx, ListFilter{SubmitterID: submitterA, Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Require().Len(page, 1)
		s.Equal("OpenAI MCP Server", page[0].EndpointName)
	})

	s.Run("negative offset rejected", func() {
		_, _, err := s.service.List(ctx, ListFilter{Offset: -1})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown status rejected", func() {
		_, _, err := s.service.List(ctx, ListFilter{Status: "Reviewing"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestDecideThenDelete_AuditQueryStillKeyedByRegistration() {
	ctx := context.Background()

	reg, err := s.service.Create(ctx, s.submission("https://a.example/mcp", "A Server"), id.NewUserID())
	s.Require().NoError(err)
	s.Require().NoError(s.service.Delete(ctx, reg.ID, id.NewUserID()))

	// Query by the deleted registration's id still returns its history.
	entries := s.entriesFor(reg.ID)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionDeleted, entries[0].Action)
	s.Equal(audit.ActionCreated, entries[1].Action)
}
