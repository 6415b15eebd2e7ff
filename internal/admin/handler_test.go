package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "qualtrack/pkg/domain"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/audit/store/memory"
	"qualtrack/pkg/testutil"
)

type failingLister struct{}

func (failingLister) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, errors.New("connection reset")
}

func newRouter(lister RecentLister) chi.Router {
	r := chi.NewRouter()
	New(lister, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestRecentAudit(t *testing.T) {
	store := memory.NewInMemoryStore()
	holder := id.HolderID(uuid.New())
	ctx := context.Background()
	for i, action := range []audit.AuditEvent{audit.EventRecordCreated, audit.EventRecordSubmitted, audit.EventRecordReviewed} {
		require.NoError(t, store.Append(ctx, audit.Event{
			HolderID:  holder,
			Action:    string(action),
			Category:  action.Category(),
			Timestamp: time.Date(2026, 3, 1, 9, i, 0, 0, time.UTC),
		}))
	}
	router := newRouter(store)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/audit?limit=2"))
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[AuditListResponse](t, rr)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "record_submitted", resp.Events[0].Action)
	assert.Equal(t, "record_reviewed", resp.Events[1].Action)
	assert.Equal(t, "compliance", resp.Events[1].Category)
	assert.Equal(t, holder.String(), resp.Events[1].HolderID)
}

func TestRecentAuditRejectsBadLimit(t *testing.T) {
	router := newRouter(memory.NewInMemoryStore())
	for _, q := range []string{"0", "1001", "many"} {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/audit?limit="+q))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	}
}

func TestRecentAuditStoreFailure(t *testing.T) {
	rr := testutil.DoRequest(newRouter(failingLister{}), testutil.NewRequest(t, http.MethodGet, "/admin/audit"))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}

func TestEmptyAuditListIsNotNull(t *testing.T) {
	rr := testutil.DoRequest(newRouter(memory.NewInMemoryStore()), testutil.NewRequest(t, http.MethodGet, "/admin/audit"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "total", float64(0))
}
