package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"qualtrack/internal/permission/models"
	"qualtrack/internal/permission/service"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Submit(ctx context.Context, caller requestcontext.Caller, requested id.Role, message string) (*models.Request, error)
	Review(ctx context.Context, caller requestcontext.Caller, requestID id.RequestID, decision service.Decision) (*models.Request, error)
	ListMine(ctx context.Context, caller requestcontext.Caller) ([]*models.Request, error)
	ListPending(ctx context.Context, caller requestcontext.Caller) ([]*models.Request, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/permission-requests", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/mine", h.HandleListMine)
		r.Get("/pending", h.HandleListPending)
		r.Post("/{requestID}/review", h.HandleReview)
	})
}

type SubmitRequest struct {
	RequestedRole string `json:"requested_role"`
	Message       string `json:"message"`
}

func (r *SubmitRequest) Normalize() {
	r.RequestedRole = strings.ToLower(strings.TrimSpace(r.RequestedRole))
	r.Message = strings.TrimSpace(r.Message)
}

// Validate accepts any shape. Role and message checks belong to the engine,
// which reports an existing pending request before either.
func (r *SubmitRequest) Validate() error {
	return nil
}

type ReviewRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

func (r *ReviewRequest) Normalize() {
	r.Outcome = strings.ToLower(strings.TrimSpace(r.Outcome))
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ReviewRequest) Validate() error {
	if !models.Outcome(r.Outcome).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "outcome must be approve or reject")
	}
	return nil
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	created, err := h.service.Submit(ctx, requestcontext.CallerFrom(ctx), id.Role(req.RequestedRole), req.Message)
	if err != nil {
		h.fail(ctx, w, "submit permission request failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(ctx, w, "invalid request id", err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	reviewed, err := h.service.Review(ctx, requestcontext.CallerFrom(ctx), requestID, service.Decision{
		Outcome: models.Outcome(req.Outcome),
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(ctx, w, "review permission request failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewed)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.service.ListMine(ctx, requestcontext.CallerFrom(ctx))
	if err != nil {
		h.fail(ctx, w, "list permission requests failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.service.ListPending(ctx, requestcontext.CallerFrom(ctx))
	if err != nil {
		h.fail(ctx, w, "list pending permission requests failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}
