package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/competency/service"
	"qualtrack/internal/documents"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the lifecycle engine surface the handler drives.
type Service interface {
	Create(ctx context.Context, caller requestcontext.Caller, definitionID id.DefinitionID, fields catalog.FieldSet) (*models.Record, error)
	Edit(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, edit service.Edit) (*models.Record, error)
	Resubmit(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, edit service.Edit) (*models.Record, error)
	AttachDocument(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, upload *documents.Upload, expectedVersion int64) (*models.Record, error)
	RemoveDocument(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (*models.Record, error)
	SubmitForReview(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (*models.Record, error)
	Delete(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) error
	Review(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID, decision service.ReviewDecision) (*models.Record, error)
	Get(ctx context.Context, caller requestcontext.Caller, recordID id.RecordID) (*models.ClassifiedRecord, error)
	ListMine(ctx context.Context, caller requestcontext.Caller) ([]models.ClassifiedRecord, error)
	ListForHolder(ctx context.Context, caller requestcontext.Caller, holderID id.HolderID) ([]models.ClassifiedRecord, error)
}

// Handler exposes competency records over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts record endpoints. Authentication middleware must run first.
func (h *Handler) Register(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.HandleListMine)
		r.Post("/", h.HandleCreate)
		r.Get("/{recordID}", h.HandleGet)
		r.Patch("/{recordID}", h.HandleEdit)
		r.Delete("/{recordID}", h.HandleDelete)
		r.Post("/{recordID}/document", h.HandleAttachDocument)
		r.Delete("/{recordID}/document", h.HandleRemoveDocument)
		r.Post("/{recordID}/submit", h.HandleSubmit)
		r.Post("/{recordID}/resubmit", h.HandleResubmit)
		r.Post("/{recordID}/review", h.HandleReview)
	})
	r.Get("/holders/{holderID}/records", h.HandleListForHolder)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, err := h.service.Create(ctx, requestcontext.CallerFrom(ctx), req.definitionID, req.FieldSet())
	if err != nil {
		h.fail(ctx, w, "create record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(ctx, rec))
}

func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	h.handleEdit(w, r, h.service.Edit, "edit record failed")
}

func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	h.handleEdit(w, r, h.service.Resubmit, "resubmit record failed")
}

type editFunc func(context.Context, requestcontext.Caller, id.RecordID, service.Edit) (*models.Record, error)

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request, apply editFunc, failMsg string) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EditRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := apply(ctx, requestcontext.CallerFrom(ctx), recordID, req.Edit())
	if err != nil {
		h.fail(ctx, w, failMsg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ctx, rec))
}

// HandleAttachDocument accepts a multipart upload in the "file" field.
func (h *Handler) HandleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	policy := documents.CertificationPolicy
	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(ctx, w, "read upload failed", dErrors.Wrap(err, dErrors.CodeBadRequest, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	upload, err := policy.Check(header.Filename, file)
	if err != nil {
		h.fail(ctx, w, "upload rejected", err)
		return
	}
	var expected int64
	if v := r.FormValue("expected_version"); v != "" {
		expected, err = strconv.ParseInt(v, 10, 64)
		if err != nil || expected < 0 {
			h.fail(ctx, w, "invalid expected version", dErrors.New(dErrors.CodeValidation, "expected_version must be a non-negative integer"))
			return
		}
	}
	rec, err := h.service.AttachDocument(ctx, requestcontext.CallerFrom(ctx), recordID, upload, expected)
	if err != nil {
		h.fail(ctx, w, "attach document failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ctx, rec))
}

func (h *Handler) HandleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.RemoveDocument, "remove document failed")
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.SubmitForReview, "submit record failed")
}

type actionFunc func(context.Context, requestcontext.Caller, id.RecordID) (*models.Record, error)

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request, apply actionFunc, failMsg string) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := apply(ctx, requestcontext.CallerFrom(ctx), recordID)
	if err != nil {
		h.fail(ctx, w, failMsg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ctx, rec))
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.Review(ctx, requestcontext.CallerFrom(ctx), recordID, req.Decision())
	if err != nil {
		h.fail(ctx, w, "review record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(ctx, rec))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, requestcontext.CallerFrom(ctx), recordID); err != nil {
		h.fail(ctx, w, "delete record failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Get(ctx, requestcontext.CallerFrom(ctx), recordID)
	if err != nil {
		h.fail(ctx, w, "get record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.ListMine(ctx, requestcontext.CallerFrom(ctx))
	if err != nil {
		h.fail(ctx, w, "list records failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) HandleListForHolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holderID, err := id.ParseHolderID(chi.URLParam(r, "holderID"))
	if err != nil {
		h.fail(ctx, w, "invalid holder id", err)
		return
	}
	records, err := h.service.ListForHolder(ctx, requestcontext.CallerFrom(ctx), holderID)
	if err != nil {
		h.fail(ctx, w, "list holder records failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(r.Context(), w, "invalid record id", err)
		return id.RecordID{}, false
	}
	return recordID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}

func toResponse(ctx context.Context, rec *models.Record) models.ClassifiedRecord {
	return models.WithClassification(rec, requestcontext.Now(ctx))
}
