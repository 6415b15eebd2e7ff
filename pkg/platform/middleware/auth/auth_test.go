package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "qualtrack/pkg/domain"
	"qualtrack/pkg/requestcontext"
)

type stubValidator struct {
	caller requestcontext.Caller
	err    error
}

func (s stubValidator) ValidateToken(string) (requestcontext.Caller, error) {
	return s.caller, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	want := requestcontext.Caller{ID: id.HolderID(uuid.New()), Role: id.RoleEditor}

	var got requestcontext.Caller
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
	}{
		{"valid token", "Bearer abc", stubValidator{caller: want}, http.StatusNoContent},
		{"missing header", "", stubValidator{caller: want}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{caller: want}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("bad signature")}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = requestcontext.Caller{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			RequireAuth(tt.validator, logger)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, want, got)
			} else {
				assert.True(t, got.IsZero())
				var body map[string]string
				assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "unauthenticated", body["error"])
			}
		})
	}
}
