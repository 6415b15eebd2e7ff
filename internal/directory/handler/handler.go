package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"qualtrack/internal/directory"
	profile "qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/httputil"
	"qualtrack/pkg/requestcontext"
)

type Service interface {
	Search(ctx context.Context, caller requestcontext.Caller, q directory.Query) ([]directory.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/directory", h.HandleSearch)
}

type entryResponse struct {
	*profile.Profile
	Held []id.DefinitionID `json:"held_definitions"`
}

// HandleSearch serves ?q=&org=&role=&definition=&presence=held|missing&sort=&dir=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r)
	if err != nil {
		h.fail(ctx, w, "invalid directory query", err)
		return
	}
	entries, err := h.service.Search(ctx, requestcontext.CallerFrom(ctx), q)
	if err != nil {
		h.fail(ctx, w, "directory search failed", err)
		return
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		held := make([]id.DefinitionID, len(e.Records))
		for j, rec := range e.Records {
			held[j] = rec.DefinitionID
		}
		out[i] = entryResponse{Profile: e.Profile, Held: held}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"holders": out})
}

func parseQuery(r *http.Request) (directory.Query, error) {
	v := r.URL.Query()
	q := directory.Query{Criteria: directory.Criteria{Text: v.Get("q")}}
	var err error
	if s := v.Get("org"); s != "" {
		if q.Criteria.OrgID, err = id.ParseOrgID(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("role"); s != "" {
		if q.Criteria.Role, err = id.ParseRole(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("definition"); s != "" {
		defID, err := id.ParseDefinitionID(s)
		if err != nil {
			return q, err
		}
		mode := directory.PresenceHeld
		if p := v.Get("presence"); p != "" {
			if mode, err = directory.ParsePresenceMode(p); err != nil {
				return q, err
			}
		}
		q.Criteria.Presence = &directory.Presence{DefinitionID: defID, Mode: mode}
	}
	if s := v.Get("sort"); s != "" {
		if q.Column, err = directory.ParseColumn(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("dir"); s != "" {
		if q.Direction, err = directory.ParseDirection(s); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	httputil.LogError(ctx, h.logger, msg, requestcontext.RequestID(ctx), err)
	httputil.WriteError(w, err)
}
