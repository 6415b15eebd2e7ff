package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	catalog "qualtrack/internal/catalog/models"
	"qualtrack/internal/competency/handler/mocks"
	"qualtrack/internal/competency/models"
	"qualtrack/internal/competency/service"
	"qualtrack/internal/documents"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
	caller  requestcontext.Caller
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
	s.caller = requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleEditor}
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	ctx := requestcontext.WithCaller(req.Context(), s.caller)
	ctx = requestcontext.WithTime(ctx, s.now)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *HandlerSuite) jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorCode(s *HandlerSuite, w *httptest.ResponseRecorder) string {
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}

func (s *HandlerSuite) TestCreate() {
	defID := id.DefinitionID(uuid.New())

	s.Run("parses date-only fields and returns the classified record", func() {
		expiry := s.now.AddDate(0, 0, 10)
		s.service.EXPECT().Create(gomock.Any(), s.caller, defID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ requestcontext.Caller, _ id.DefinitionID, fs catalog.FieldSet) (*models.Record, error) {
				s.Require().NotNil(fs.ExpiryDate)
				s.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), *fs.ExpiryDate)
				s.Equal("BSI", *fs.IssuingBody)
				return &models.Record{
					ID: id.RecordID(uuid.New()), HolderID: s.caller.ID, DefinitionID: defID,
					ExpiryDate: &expiry, Status: models.StatusActive, Version: 1,
				}, nil
			})

		body := `{"definition_id":"` + defID.String() + `","issuing_body":"BSI","expiry_date":"2026-03-11"}`
		w := s.do(s.jsonRequest(http.MethodPost, "/records", body))

		s.Equal(http.StatusCreated, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal("expiring_soon", resp["classification"])
		s.Equal("active", resp["status"])
	})

	s.Run("rejects a malformed date before reaching the service", func() {
		body := `{"definition_id":"` + defID.String() + `","expiry_date":"next tuesday"}`
		w := s.do(s.jsonRequest(http.MethodPost, "/records", body))

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(string(dErrors.CodeValidation), errorCode(s, w))
	})

	s.Run("rejects unknown fields", func() {
		body := `{"definition_id":"` + defID.String() + `","colour":"blue"}`
		w := s.do(s.jsonRequest(http.MethodPost, "/records", body))

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(string(dErrors.CodeBadRequest), errorCode(s, w))
	})

	s.Run("maps duplicate records to conflict", func() {
		s.service.EXPECT().Create(gomock.Any(), s.caller, defID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateRecord, "a record for this competency already exists"))

		w := s.do(s.jsonRequest(http.MethodPost, "/records", `{"definition_id":"`+defID.String()+`"}`))

		s.Equal(http.StatusConflict, w.Code)
		s.Equal(string(dErrors.CodeDuplicateRecord), errorCode(s, w))
	})
}

func (s *HandlerSuite) TestEditPassesExpectedVersionAndClears() {
	recordID := id.RecordID(uuid.New())
	s.service.EXPECT().Edit(gomock.Any(), s.caller, recordID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ requestcontext.Caller, _ id.RecordID, edit service.Edit) (*models.Record, error) {
			s.Equal(int64(4), edit.ExpectedVersion)
			s.Equal([]catalog.Field{catalog.FieldExpiryDate}, edit.Fields.Clear)
			return &models.Record{ID: recordID, HolderID: s.caller.ID, Status: models.StatusActive, Version: 5}, nil
		})

	w := s.do(s.jsonRequest(http.MethodPatch, "/records/"+recordID.String(), `{"clear":[" Expiry_Date "],"expected_version":4}`))

	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestStaleVersionIsConflict() {
	recordID := id.RecordID(uuid.New())
	s.service.EXPECT().Resubmit(gomock.Any(), s.caller, recordID, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "record was modified since it was read"))

	w := s.do(s.jsonRequest(http.MethodPost, "/records/"+recordID.String()+"/resubmit", `{"notes":"fixed","expected_version":2}`))

	s.Equal(http.StatusConflict, w.Code)
	s.Equal(string(dErrors.CodeConflict), errorCode(s, w))
}

func (s *HandlerSuite) TestInvalidRecordID() {
	w := s.do(httptest.NewRequest(http.MethodGet, "/records/not-a-uuid", nil))

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(string(dErrors.CodeInvalidInput), errorCode(s, w))
}

func (s *HandlerSuite) TestReview() {
	recordID := id.RecordID(uuid.New())

	s.Run("forwards the decision", func() {
		s.service.EXPECT().Review(gomock.Any(), s.caller, recordID, service.ReviewDecision{
			Outcome: models.OutcomeRequestChanges, Note: "Scan is blurry",
		}).Return(&models.Record{ID: recordID, Status: models.StatusChangesRequested, ReviewNote: "Scan is blurry"}, nil)

		w := s.do(s.jsonRequest(http.MethodPost, "/records/"+recordID.String()+"/review", `{"outcome":"REQUEST_CHANGES","note":"  Scan is blurry "}`))

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("insufficient role is forbidden", func() {
		s.service.EXPECT().Review(gomock.Any(), s.caller, recordID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "reviewer role required"))

		w := s.do(s.jsonRequest(http.MethodPost, "/records/"+recordID.String()+"/review", `{"outcome":"approve"}`))

		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("unknown outcome is a validation error", func() {
		w := s.do(s.jsonRequest(http.MethodPost, "/records/"+recordID.String()+"/review", `{"outcome":"maybe"}`))

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(string(dErrors.CodeValidation), errorCode(s, w))
	})
}

func (s *HandlerSuite) TestAttachDocument() {
	recordID := id.RecordID(uuid.New())
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

	s.Run("sniffs the upload and forwards it", func() {
		s.service.EXPECT().AttachDocument(gomock.Any(), s.caller, recordID, gomock.Any(), int64(3)).
			DoAndReturn(func(_ context.Context, _ requestcontext.Caller, _ id.RecordID, upload *documents.Upload, _ int64) (*models.Record, error) {
				s.Equal("application/pdf", upload.ContentType)
				s.Equal(".pdf", upload.Extension)
				s.Equal("first-aid.pdf", upload.Name)
				return &models.Record{ID: recordID, Status: models.StatusPendingApproval, Version: 4}, nil
			})

		w := s.do(s.multipartRequest(recordID, "first-aid.pdf", pdf, "3"))

		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("rejects unsupported content", func() {
		w := s.do(s.multipartRequest(recordID, "notes.txt", []byte("plain text notes"), ""))

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(string(dErrors.CodeValidation), errorCode(s, w))
	})

	s.Run("requires the file field", func() {
		req := httptest.NewRequest(http.MethodPost, "/records/"+recordID.String()+"/document", strings.NewReader(""))
		w := s.do(req)

		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) multipartRequest(recordID id.RecordID, filename string, content []byte, version string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	s.Require().NoError(err)
	_, err = part.Write(content)
	s.Require().NoError(err)
	if version != "" {
		s.Require().NoError(mw.WriteField("expected_version", version))
	}
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/records/"+recordID.String()+"/document", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *HandlerSuite) TestDelete() {
	recordID := id.RecordID(uuid.New())
	s.service.EXPECT().Delete(gomock.Any(), s.caller, recordID).Return(nil)

	w := s.do(httptest.NewRequest(http.MethodDelete, "/records/"+recordID.String(), nil))

	s.Equal(http.StatusNoContent, w.Code)
}

func (s *HandlerSuite) TestListForHolder() {
	holderID := id.HolderID(uuid.New())
	s.service.EXPECT().ListForHolder(gomock.Any(), s.caller, holderID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "competency record not found"))

	w := s.do(httptest.NewRequest(http.MethodGet, "/holders/"+holderID.String()+"/records", nil))

	s.Equal(http.StatusNotFound, w.Code)
}
