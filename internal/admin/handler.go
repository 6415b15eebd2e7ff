// Package admin serves operator endpoints behind the admin token.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// RecentLister is implemented by both audit stores.
type RecentLister interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	audit  RecentLister
	issuer TokenIssuer
	roster Roster
	logger *slog.Logger
}

func New(audit RecentLister, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{audit: audit, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.HandleRecentAudit)
	if h.issuer != nil {
		r.Post("/admin/tokens", h.HandleIssueToken)
	}
}

// HandleRecentAudit returns the newest audit events, capped by ?limit=.
func (h *Handler) HandleRecentAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	events, err := h.audit.ListRecent(ctx, limit)
	if err != nil {
		httputil.LogError(ctx, h.logger, "failed to list audit events", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}

	resp := &AuditListResponse{Events: make([]*AuditEventResponse, 0, len(events)), Total: len(events)}
	for _, e := range events {
		resp.Events = append(resp.Events, toAuditEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
