// Package handler exposes the user directory over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joelborellis/mcp-registry/internal/user"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/httputil"
	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
	"github.com/joelborellis/mcp-registry/pkg/requestcontext"
)

// Service defines the directory operations the handler needs.
type Service interface {
	GetByID(ctx context.Context, userID id.UserID) (*user.User, error)
	SetAdminFlag(ctx context.Context, userID id.UserID, isAdmin bool) (*user.User, error)
}

// Handler handles user directory endpoints.
type Handler struct {
	users        Service
	logger       *slog.Logger
	requireAdmin func(http.Handler) http.Handler
}

// New creates a new user Handler. requireAdmin guards the admin-flag
// mutation route.
func New(users Service, requireAdmin func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger, requireAdmin: requireAdmin}
}

// Register mounts the user routes. The router is expected to already
// carry the authentication middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.handleSyncUser)
	r.Get("/users/me", h.handleGetMe)
	r.Get("/users/{userID}", h.handleGetByID)
	r.With(h.requireAdmin).Put("/users/{userID}/admin", h.handleSetAdminFlag)
}

type userResponse struct {
	UserID      string    `json:"user_id"`
	ExternalID  string    `json:"external_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		UserID:      u.ID.String(),
		ExternalID:  u.ExternalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// handleSyncUser returns the caller's directory record, which the auth
// middleware has already created or refreshed for this request. First
// logins answer 201, subsequent syncs 200.
func (h *Handler) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		h.authContextError(w, ctx)
		return
	}

	u, err := h.users.GetByID(ctx, principal.UserID)
	if err != nil {
		h.logError(ctx, "failed to load synced user", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if u.UpdatedAt.Sub(u.CreatedAt) < time.Second {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toUserResponse(u))
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		h.authContextError(w, ctx)
		return
	}

	u, err := h.users.GetByID(ctx, principal.UserID)
	if err != nil {
		h.logError(ctx, "failed to load own profile", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logError(ctx, "failed to load user", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type setAdminFlagRequest struct {
	IsAdmin bool `json:"is_admin"`
}

func (h *Handler) handleSetAdminFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req setAdminFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	u, err := h.users.SetAdminFlag(ctx, userID, req.IsAdmin)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logError(ctx, "failed to update admin flag", err)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "admin flag updated",
		"user_id", u.ID.String(),
		"is_admin", u.IsAdmin,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) authContextError(w http.ResponseWriter, ctx context.Context) {
	// Should never happen when RequireAuth is configured on the router.
	h.logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err.Error(),
		"request_id", request.GetRequestID(ctx),
	)
}
