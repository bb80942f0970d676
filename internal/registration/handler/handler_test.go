package handler

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelborellis/mcp-registry/internal/audit"
	"github.com/joelborellis/mcp-registry/internal/registration"
	"github.com/joelborellis/mcp-registry/internal/registration/metrics"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/tx"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
	"github.com/joelborellis/mcp-registry/pkg/testutil"
)

var testMetrics = metrics.New()

func passthrough(next http.Handler) http.Handler { return next }

// newTestRouter wires the handler over in-memory stores. Authorization
// middleware is replaced by a passthrough; the service behavior itself
// is under test, not the guards.
func newTestRouter(t *testing.T) (chi.Router, *registration.InMemoryStore) {
	t.Helper()

	regs := registration.NewInMemoryStore()
	auditStore := audit.NewInMemoryStore()
	runner := tx.NewMemoryRunner(
		func() func() {
			snap := regs.Snapshot()
			return func() { regs.Restore(snap) }
		},
		func() func() {
			snap := auditStore.Snapshot()
			return func() { auditStore.Restore(snap) }
		},
	)
	svc := registration.NewService(regs, audit.NewService(auditStore), runner, testMetrics)

	r := chi.NewRouter()
	New(svc, passthrough, passthrough, slog.Default()).Register(r)
	return r, regs
}

func createBody() map[string]any {
	return map[string]any{
		"endpoint_url":  "https://a.example/mcp",
		"endpoint_name": "A Server",
		"owner_contact": "o@x.com",
		"available_tools": []map[string]string{
			{"name": "search", "version": "1.0"},
		},
	}
}

func createOne(t *testing.T, router chi.Router, principal requestcontext.Principal) registrationResponse {
	t.Helper()
	req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/registrations", createBody()), principal)
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[registrationResponse](t, rr)
}

func TestCreateRegistration(t *testing.T) {
	router, _ := newTestRouter(t)
	principal := testutil.UserPrincipal()

	resp := createOne(t, router, principal)
	assert.Equal(t, "Pending", resp.Status)
	assert.Equal(t, principal.UserID.String(), resp.SubmitterID)
	assert.Nil(t, resp.ApproverID)
	assert.NotEmpty(t, resp.RegistrationID)
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "search", resp.Tools[0].Name)

	t.Run("duplicate url answers 409", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/registrations", createBody()), principal)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusConflict, rr.Code)
		body := testutil.UnmarshalErrorResponse(t, rr)
		assert.Equal(t, string(dErrors.CodeConflict), body["error"])
	})

	t.Run("malformed body answers 400", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/registrations", "not an object"), principal)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("validation failure answers 400", func(t *testing.T) {
		body := createBody()
		body["endpoint_url"] = "ftp://nope"
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/registrations", body), principal)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetRegistration(t *testing.T) {
	router, _ := newTestRouter(t)
	principal := testutil.UserPrincipal()
	created := createOne(t, router, principal)

	t.Run("by id", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations/"+created.RegistrationID), principal)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[registrationResponse](t, rr)
		assert.Equal(t, created.RegistrationID, resp.RegistrationID)
	})

	t.Run("by url", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations/by-url?endpoint_url=https%3A%2F%2Fa.example%2Fmcp"), principal)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[registrationResponse](t, rr)
		assert.Equal(t, created.RegistrationID, resp.RegistrationID)
	})

	t.Run("unknown id answers 404", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations/00000000-0000-0000-0000-000000000001"), principal)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("malformed id answers 400", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations/not-a-uuid"), principal)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDecideRegistration(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := testutil.AdminPrincipal()
	created := createOne(t, router, testutil.UserPrincipal())

	decide := func(status, reason string) *http.Request {
		return testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPatch,
			"/registrations/"+created.RegistrationID+"/status",
			map[string]string{"status": status, "reason": reason}), admin)
	}

	rr := testutil.DoRequest(router, decide("Approved", "looks good"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[registrationResponse](t, rr)
	assert.Equal(t, "Approved", resp.Status)
	require.NotNil(t, resp.ApproverID)
	assert.Equal(t, admin.UserID.String(), *resp.ApproverID)
	assert.NotNil(t, resp.ApprovedAt)

	t.Run("re-deciding answers 400 invalid_state", func(t *testing.T) {
		rr := testutil.DoRequest(router, decide("Rejected", ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := testutil.UnmarshalErrorResponse(t, rr)
		assert.Equal(t, string(dErrors.CodeInvalidState), body["error"])
	})

	t.Run("pending target answers 400", func(t *testing.T) {
		rr := testutil.DoRequest(router, decide("Pending", ""))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDeleteRegistration(t *testing.T) {
	router, regs := newTestRouter(t)
	admin := testutil.AdminPrincipal()
	created := createOne(t, router, testutil.UserPrincipal())

	req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodDelete, "/registrations/"+created.RegistrationID), admin)
	rr := testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, regs.Snapshot())

	t.Run("deleting again answers 404", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodDelete, "/registrations/"+created.RegistrationID), admin)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestListRegistrations(t *testing.T) {
	router, _ := newTestRouter(t)
	mine := testutil.UserPrincipal()
	other := testutil.UserPrincipal()

	createOne(t, router, mine)

	body := createBody()
	body["endpoint_url"] = "https://b.example/mcp"
	body["endpoint_name"] = "B Server"
	req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/registrations", body), other)
	require.Equal(t, http.StatusCreated, testutil.DoRequest(router, req).Code)

	t.Run("envelope carries total and page bounds", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations?limit=1"), mine)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[listResponse](t, rr)
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, 1, resp.Limit)
		assert.Len(t, resp.Results, 1)
	})

	t.Run("my scope ignores submitter_id parameter", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet,
			"/registrations/my?submitter_id="+other.UserID.String()), mine)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[listResponse](t, rr)
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, mine.UserID.String(), resp.Results[0].SubmitterID)
	})

	t.Run("search filter", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations?search=b+server"), mine)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[listResponse](t, rr)
		assert.Equal(t, 1, resp.Total)
	})

	t.Run("bad limit answers 400", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/registrations?limit=abc"), mine)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
