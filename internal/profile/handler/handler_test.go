package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualtrack/internal/documents"
	"qualtrack/internal/profile/service"
	"qualtrack/internal/profile/store"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/requestcontext"
)

func newRouter() chi.Router {
	svc := service.New(store.NewInMemory(), documents.NewInMemory("https://cdn.test"))
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func call(r chi.Router, caller requestcontext.Caller, req *http.Request) *httptest.ResponseRecorder {
	req = req.WithContext(requestcontext.WithCaller(req.Context(), caller))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProvisionThenAvatar(t *testing.T) {
	router := newRouter()
	admin := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleAdmin}
	holderID := uuid.New()
	orgID := uuid.New()

	body := `{"id":"` + holderID.String() + `","display_name":"Nia Cole","email":" Nia@Example.test ","role":"Editor","organization_id":"` + orgID.String() + `"}`
	w := call(router, admin, httptest.NewRequest(http.MethodPost, "/profiles", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	holder := requestcontext.Caller{ID: id.HolderID(holderID), Role: id.RoleEditor, OrgID: id.OrgID(orgID)}
	w = call(router, holder, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "nia@example.test", me["email"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPut, "/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w = call(router, holder, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "/avatars/avatar-")
}

func TestAvatarRejectsPDF(t *testing.T) {
	router := newRouter()
	holder := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleEditor}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "cv.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4\n%%EOF\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPut, "/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := call(router, holder, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditorCannotProvision(t *testing.T) {
	router := newRouter()
	editor := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleEditor, OrgID: id.OrgID(uuid.New())}
	body := `{"id":"` + uuid.NewString() + `","display_name":"X","email":"x@example.test","role":"viewer","organization_id":"` + editor.OrgID.String() + `"}`

	w := call(router, editor, httptest.NewRequest(http.MethodPost, "/profiles", strings.NewReader(body)))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
