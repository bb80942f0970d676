// Package handler exposes the registration lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joelborellis/mcp-registry/internal/registration"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/httputil"
	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Service defines the lifecycle operations the handler needs.
type Service interface {
	Create(ctx context.Context, sub registration.Submission, submitterID id.UserID) (*registration.Registration, error)
	Decide(ctx context.Context, regID id.RegistrationID, status registration.Status, approverID id.UserID, reason string) (*registration.Registration, error)
	Delete(ctx context.Context, regID id.RegistrationID, deleterID id.UserID) error
	GetByID(ctx context.Context, regID id.RegistrationID) (*registration.Registration, error)
	GetByURL(ctx context.Context, endpointURL string) (*registration.Registration, error)
	List(ctx context.Context, f registration.ListFilter) ([]*registration.Registration, int, error)
}

// Handler handles registration endpoints.
type Handler struct {
	registrations Service
	logger        *slog.Logger
	requireAdmin  func(http.Handler) http.Handler
	rateLimit     func(http.Handler) http.Handler
}

// New creates a new registration Handler. requireAdmin guards decision
// and deletion routes; rateLimit bounds submission volume per caller.
func New(registrations Service, requireAdmin, rateLimit func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		registrations: registrations,
		logger:        logger,
		requireAdmin:  requireAdmin,
		rateLimit:     rateLimit,
	}
}

// Register mounts the registration routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.With(h.rateLimit).Post("/registrations", h.handleCreate)
	r.Get("/registrations", h.handleList)
	r.Get("/registrations/my", h.handleListMine)
	r.Get("/registrations/by-url", h.handleGetByURL)
	r.Get("/registrations/{registrationID}", h.handleGetByID)
	r.With(h.requireAdmin).Patch("/registrations/{registrationID}/status", h.handleDecide)
	r.With(h.requireAdmin).Delete("/registrations/{registrationID}", h.handleDelete)
}

type toolRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type createRequest struct {
	EndpointURL  string        `json:"endpoint_url"`
	EndpointName string        `json:"endpoint_name"`
	Description  string        `json:"description"`
	OwnerContact string        `json:"owner_contact"`
	Tools        []toolRequest `json:"available_tools"`
}

type registrationResponse struct {
	RegistrationID string              `json:"registration_id"`
	EndpointURL    string              `json:"endpoint_url"`
	EndpointName   string              `json:"endpoint_name"`
	Description    string              `json:"description,omitempty"`
	OwnerContact   string              `json:"owner_contact"`
	Tools          []registration.Tool `json:"available_tools"`
	Status         string              `json:"status"`
	SubmitterID    string              `json:"submitter_id"`
	ApproverID     *string             `json:"approver_id"`
	ApprovedAt     *time.Time          `json:"approved_at"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type listResponse struct {
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	Results []registrationResponse `json:"results"`
}

func toResponse(r *registration.Registration) registrationResponse {
	resp := registrationResponse{
		RegistrationID: r.ID.String(),
		EndpointURL:    r.EndpointURL,
		EndpointName:   r.EndpointName,
		Description:    r.Description,
		OwnerContact:   r.OwnerContact,
		Tools:          r.Tools,
		Status:         string(r.Status),
		SubmitterID:    r.SubmitterID.String(),
		ApprovedAt:     r.ApprovedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if resp.Tools == nil {
		resp.Tools = []registration.Tool{}
	}
	if r.ApproverID != nil {
		v := r.ApproverID.String()
		resp.ApproverID = &v
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		h.authContextError(w, ctx)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tools := make([]registration.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, registration.Tool{Name: t.Name, Description: t.Description, Version: t.Version})
	}

	reg, err := h.registrations.Create(ctx, registration.Submission{
		EndpointURL:  req.EndpointURL,
		EndpointName: req.EndpointName,
		Description:  req.Description,
		OwnerContact: req.OwnerContact,
		Tools:        tools,
	}, principal.UserID)
	if err != nil {
		h.writeServiceError(w, ctx, "failed to create registration", err)
		return
	}

	h.logger.InfoContext(ctx, "registration submitted",
		"registration_id", reg.ID.String(),
		"endpoint_url", reg.EndpointURL,
		"submitter_id", principal.UserID.String(),
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusCreated, toResponse(reg))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, id.UserID{})
}

// handleListMine lists the caller's own submissions regardless of any
// submitter_id query parameter.
func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	principal, ok := requestcontext.PrincipalFrom(r.Context())
	if !ok {
		h.authContextError(w, r.Context())
		return
	}
	h.list(w, r, principal.UserID)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, forcedSubmitter id.UserID) {
	ctx := r.Context()

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !forcedSubmitter.IsNil() {
		filter.SubmitterID = forcedSubmitter
	}

	page, total, err := h.registrations.List(ctx, filter)
	if err != nil {
		h.writeServiceError(w, ctx, "failed to list registrations", err)
		return
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = registration.DefaultListLimit
	} else if limit > registration.MaxListLimit {
		limit = registration.MaxListLimit
	}

	results := make([]registrationResponse, 0, len(page))
	for _, reg := range page {
		results = append(results, toResponse(reg))
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		Results: results,
	})
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	regID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.registrations.GetByID(ctx, regID)
	if err != nil {
		h.writeServiceError(w, ctx, "failed to load registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(reg))
}

func (h *Handler) handleGetByURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reg, err := h.registrations.GetByURL(ctx, r.URL.Query().Get("endpoint_url"))
	if err != nil {
		h.writeServiceError(w, ctx, "failed to load registration by url", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(reg))
}

type decideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		h.authContextError(w, ctx)
		return
	}

	regID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	reg, err := h.registrations.Decide(ctx, regID, registration.Status(req.Status), principal.UserID, req.Reason)
	if err != nil {
		h.writeServiceError(w, ctx, "failed to decide registration", err)
		return
	}

	h.logger.InfoContext(ctx, "registration decided",
		"registration_id", reg.ID.String(),
		"status", string(reg.Status),
		"approver_id", principal.UserID.String(),
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toResponse(reg))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		h.authContextError(w, ctx)
		return
	}

	regID, err := id.ParseRegistrationID(chi.URLParam(r, "registrationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.registrations.Delete(ctx, regID, principal.UserID); err != nil {
		h.writeServiceError(w, ctx, "failed to delete registration", err)
		return
	}

	h.logger.InfoContext(ctx, "registration deleted",
		"registration_id", regID.String(),
		"deleter_id", principal.UserID.String(),
		"request_id", request.GetRequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func parseListFilter(r *http.Request) (registration.ListFilter, error) {
	var (
		f   registration.ListFilter
		q   = r.URL.Query()
		err error
	)

	if v := q.Get("status"); v != "" {
		f.Status = registration.Status(v)
	}
	if v := q.Get("submitter_id"); v != "" {
		if f.SubmitterID, err = id.ParseUserID(v); err != nil {
			return f, err
		}
	}
	f.Search = q.Get("search")
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer")
		}
	}
	return f, nil
}

// writeServiceError hides internal detail from the wire and logs it
// instead; expected outcomes pass through to the status mapping.
func (h *Handler) writeServiceError(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"error", err.Error(),
			"request_id", request.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) authContextError(w http.ResponseWriter, ctx context.Context) {
	// Should never happen when RequireAuth is configured on the router.
	h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
}
