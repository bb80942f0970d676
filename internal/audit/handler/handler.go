// Package handler exposes the audit ledger to admins over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joelborellis/mcp-registry/internal/audit"
	id "github.com/joelborellis/mcp-registry/pkg/domain"
	dErrors "github.com/joelborellis/mcp-registry/pkg/domain-errors"
	"github.com/joelborellis/mcp-registry/pkg/platform/httputil"
	request "github.com/joelborellis/mcp-registry/pkg/platform/middleware/request"
)

// Service defines the ledger operations the handler needs.
type Service interface {
	QueryLogs(ctx context.Context, f audit.Filter) ([]*audit.Entry, int, error)
}

// Handler handles audit ledger endpoints.
type Handler struct {
	auditLog     Service
	logger       *slog.Logger
	requireAdmin func(http.Handler) http.Handler
}

func New(auditLog Service, requireAdmin func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{auditLog: auditLog, logger: logger, requireAdmin: requireAdmin}
}

// Register mounts the audit routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.With(h.requireAdmin).Get("/audit-logs", h.handleQueryLogs)
}

type entryResponse struct {
	AuditLogID     string         `json:"audit_log_id"`
	RegistrationID string         `json:"registration_id"`
	Action         string         `json:"action"`
	ActorID        string         `json:"actor_id"`
	PreviousStatus *string        `json:"previous_status"`
	NewStatus      *string        `json:"new_status"`
	Metadata       map[string]any `json:"metadata"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type queryLogsResponse struct {
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Results []entryResponse `json:"results"`
}

func (h *Handler) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, total, err := h.auditLog.QueryLogs(ctx, filter)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "failed to query audit log",
				"error", err.Error(),
				"request_id", request.GetRequestID(ctx),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	} else if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	results := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		results = append(results, entryResponse{
			AuditLogID:     e.ID.String(),
			RegistrationID: e.RegistrationID.String(),
			Action:         string(e.Action),
			ActorID:        e.ActorID.String(),
			PreviousStatus: e.PreviousStatus,
			NewStatus:      e.NewStatus,
			Metadata:       e.Metadata,
			OccurredAt:     e.OccurredAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, queryLogsResponse{
		Total:   total,
		Limit:   limit,
		Offset:  filter.Offset,
		Results: results,
	})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	var (
		f   audit.Filter
		q   = r.URL.Query()
		err error
	)

	if v := q.Get("registration_id"); v != "" {
		if f.RegistrationID, err = id.ParseRegistrationID(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("actor_id"); v != "" {
		if f.ActorID, err = id.ParseUserID(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("action"); v != "" {
		f.Action = audit.Action(v)
	}
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "invalid from timestamp, want RFC 3339")
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "invalid to timestamp, want RFC 3339")
		}
	}
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
