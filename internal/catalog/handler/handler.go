package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	List(ctx context.Context) ([]*models.Definition, error)
}

// Handler exposes the read-only catalog.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/catalog/definitions", h.HandleList)
	r.Get("/catalog/definitions/{definitionID}", h.HandleGet)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defs, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "list definitions failed", err)
		return
	}
	if defs == nil {
		defs = []*models.Definition{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"definitions": defs})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defID, err := id.ParseDefinitionID(chi.URLParam(r, "definitionID"))
	if err != nil {
		h.fail(ctx, w, "invalid definition id", err)
		return
	}
	def, err := h.service.Get(ctx, defID)
	if err != nil {
		h.fail(ctx, w, "get definition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, def)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}
