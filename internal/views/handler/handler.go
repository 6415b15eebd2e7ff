package handler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"qualtrack/internal/views"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

type Service interface {
	ExpiringWithin(ctx context.Context, caller requestcontext.Caller, windowDays int, scope views.Scope) ([]views.HolderRecord, error)
	PendingForReview(ctx context.Context, caller requestcontext.Caller, scope views.Scope) ([]views.HolderRecord, error)
	AttentionRequired(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) ([]views.HolderRecord, error)
	ComplianceMatrix(ctx context.Context, caller requestcontext.Caller, scope views.Scope) (*views.Matrix, error)
	Export(ctx context.Context, caller requestcontext.Caller, scope views.Scope) (*views.Snapshot, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/views", func(r chi.Router) {
		r.Get("/expiring", h.HandleExpiring)
		r.Get("/pending", h.HandlePending)
		r.Get("/attention", h.HandleAttentionMine)
		r.Get("/attention/{holderID}", h.HandleAttention)
		r.Get("/matrix", h.HandleMatrix)
		r.Get("/export", h.HandleExport)
	})
}

// HandleExpiring serves ?days=N&org=<uuid>. Days defaults to the configured window.
func (h *Handler) HandleExpiring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var days int
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(ctx, w, "invalid days", dErrors.New(dErrors.CodeValidation, "days must be an integer"))
			return
		}
		days = n
	}
	out, err := h.service.ExpiringWithin(ctx, requestcontext.CallerFrom(ctx), days, scope)
	if err != nil {
		h.fail(ctx, w, "expiring view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": nonNil(out)})
}

func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	out, err := h.service.PendingForReview(ctx, requestcontext.CallerFrom(ctx), scope)
	if err != nil {
		h.fail(ctx, w, "pending view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": nonNil(out)})
}

func (h *Handler) HandleAttentionMine(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.CallerFrom(r.Context())
	h.attention(w, r, caller.ID)
}

func (h *Handler) HandleAttention(w http.ResponseWriter, r *http.Request) {
	holderID, err := id.ParseHolderID(chi.URLParam(r, "holderID"))
	if err != nil {
		h.fail(r.Context(), w, "invalid holder id", err)
		return
	}
	h.attention(w, r, holderID)
}

func (h *Handler) attention(w http.ResponseWriter, r *http.Request, holderID id.HolderID) {
	ctx := r.Context()
	out, err := h.service.AttentionRequired(ctx, requestcontext.CallerFrom(ctx), holderID)
	if err != nil {
		h.fail(ctx, w, "attention view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": nonNil(out)})
}

func (h *Handler) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	m, err := h.service.ComplianceMatrix(ctx, requestcontext.CallerFrom(ctx), scope)
	if err != nil {
		h.fail(ctx, w, "matrix view failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// HandleExport serves JSON, or CSV when ?format=csv.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		h.fail(ctx, w, "invalid format", dErrors.New(dErrors.CodeValidation, "format must be json or csv"))
		return
	}
	snap, err := h.service.Export(ctx, requestcontext.CallerFrom(ctx), scope)
	if err != nil {
		h.fail(ctx, w, "export failed", err)
		return
	}
	if format != "csv" {
		httputil.WriteJSON(w, http.StatusOK, snap)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="qualifications.csv"`)
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(snap.Table()); err != nil {
		httputil.LogError(ctx, h.logger, "write csv failed", requestcontext.RequestID(ctx), err)
	}
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (views.Scope, bool) {
	v := r.URL.Query().Get("org")
	if v == "" {
		return views.Scope{}, true
	}
	orgID, err := id.ParseOrgID(v)
	if err != nil {
		h.fail(r.Context(), w, "invalid organization id", err)
		return views.Scope{}, false
	}
	return views.Scope{OrgID: orgID}, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}

func nonNil(in []views.HolderRecord) []views.HolderRecord {
	if in == nil {
		return []views.HolderRecord{}
	}
	return in
}
