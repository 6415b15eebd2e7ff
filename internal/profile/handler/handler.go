package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"qualtrack/internal/documents"
	"qualtrack/internal/profile/models"
	"qualtrack/internal/profile/service"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, caller requestcontext.Caller, in service.NewProfileInput) (*models.Profile, error)
	Get(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) (*models.Profile, error)
	SetAvatar(ctx context.Context, caller requestcontext.Caller, upload *documents.Upload) (*models.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts profile endpoints. The roster listing lives with the
// directory handler.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
	r.Put("/me/avatar", h.HandleSetAvatar)
	r.Post("/profiles", h.HandleCreate)
	r.Get("/profiles/{holderID}", h.HandleGet)
}

type CreateProfileRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	OrgID       string `json:"organization_id,omitempty"`
	Phone       string `json:"phone,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`

	input service.NewProfileInput
}

func (r *CreateProfileRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.OrgID = strings.TrimSpace(r.OrgID)
}

func (r *CreateProfileRequest) Validate() error {
	holderID, err := id.ParseHolderID(r.ID)
	if err != nil {
		return err
	}
	role, err := id.ParseRole(r.Role)
	if err != nil {
		return err
	}
	var orgID id.OrgID
	if r.OrgID != "" {
		if orgID, err = id.ParseOrgID(r.OrgID); err != nil {
			return err
		}
	}
	if r.DisplayName == "" || r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "display_name and email are required")
	}
	r.input = service.NewProfileInput{
		ID: holderID, DisplayName: r.DisplayName, Email: r.Email, Role: role,
		OrgID: orgID, Phone: r.Phone, JobTitle: r.JobTitle,
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.Create(ctx, requestcontext.CallerFrom(ctx), req.input)
	if err != nil {
		h.fail(ctx, w, "create profile failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.CallerFrom(ctx)
	p, err := h.service.Get(ctx, caller, caller.ID)
	if err != nil {
		h.fail(ctx, w, "get profile failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holderID, err := id.ParseHolderID(chi.URLParam(r, "holderID"))
	if err != nil {
		h.fail(ctx, w, "invalid holder id", err)
		return
	}
	p, err := h.service.Get(ctx, requestcontext.CallerFrom(ctx), holderID)
	if err != nil {
		h.fail(ctx, w, "get profile failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleSetAvatar accepts a multipart image in the "file" field.
func (h *Handler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policy := documents.AvatarPolicy
	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(ctx, w, "read upload failed", dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	upload, err := policy.Check(header.Filename, file)
	if err != nil {
		h.fail(ctx, w, "avatar rejected", err)
		return
	}
	p, err := h.service.SetAvatar(ctx, requestcontext.CallerFrom(ctx), upload)
	if err != nil {
		h.fail(ctx, w, "set avatar failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}
