package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"qualtrack/internal/permission/handler/mocks"
	"qualtrack/internal/permission/models"
	"qualtrack/internal/permission/service"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/requestcontext"
)

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, svc
}

func serve(r chi.Router, caller requestcontext.Caller, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(requestcontext.WithCaller(req.Context(), caller))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleSubmit(t *testing.T) {
	caller := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleViewer}

	t.Run("normalizes and forwards", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().Submit(gomock.Any(), caller, id.RoleAdmin, "I run the depot").
			Return(&models.Request{ID: id.RequestID(uuid.New()), Status: models.StatusPending, RequestedRole: id.RoleAdmin}, nil)

		w := serve(router, caller, http.MethodPost, "/permission-requests", `{"requested_role":" Admin ","message":" I run the depot "}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp["status"])
	})

	t.Run("duplicate pending is a conflict", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().Submit(gomock.Any(), caller, id.RoleEditor, "").
			Return(nil, dErrors.New(dErrors.CodeDuplicatePendingRequest, "a permission request is already pending"))

		w := serve(router, caller, http.MethodPost, "/permission-requests", `{"requested_role":"editor"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), string(dErrors.CodeDuplicatePendingRequest))
	})

	t.Run("missing role is left to the engine", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().Submit(gomock.Any(), caller, id.Role(""), "hi").
			Return(nil, dErrors.New(dErrors.CodeValidation, "requested role is not recognised"))

		w := serve(router, caller, http.MethodPost, "/permission-requests", `{"message":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleReview(t *testing.T) {
	caller := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleAdmin}
	requestID := id.RequestID(uuid.New())
	path := "/permission-requests/" + requestID.String() + "/review"

	t.Run("forwards the decision", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().Review(gomock.Any(), caller, requestID, service.Decision{Outcome: models.OutcomeReject, Reason: "not now"}).
			Return(&models.Request{ID: requestID, Status: models.StatusRejected, RejectionReason: "not now"}, nil)

		w := serve(router, caller, http.MethodPost, path, `{"outcome":"reject","reason":"not now "}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("already resolved", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().Review(gomock.Any(), caller, requestID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "request has already been approved"))

		w := serve(router, caller, http.MethodPost, path, `{"outcome":"approve"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("bad outcome", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, caller, http.MethodPost, path, `{"outcome":"defer"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, caller, http.MethodPost, "/permission-requests/xyz/review", `{"outcome":"approve"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleListPendingForbidden(t *testing.T) {
	caller := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleEditor}
	router, svc := newTestRouter(t)
	svc.EXPECT().ListPending(gomock.Any(), caller).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required"))

	w := serve(router, caller, http.MethodGet, "/permission-requests/pending", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
