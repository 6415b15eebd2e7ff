package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"qualtrack/internal/ratelimit/metrics"
	"qualtrack/internal/ratelimit/models"
	id "qualtrack/pkg/domain"
	audit "qualtrack/pkg/platform/audit"
	metadata "qualtrack/pkg/platform/middleware/metadata"
	"qualtrack/pkg/requestcontext"
)

type stubLimiter struct {
	result *models.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (*models.Result, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

type recordingPublisher struct {
	events []audit.Event
}

func (p *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	p.events = append(p.events, e)
	return nil
}

type RateLimitSuite struct {
	suite.Suite
	limiter   *stubLimiter
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	reached   bool
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	s.limiter = &stubLimiter{}
	s.publisher = &recordingPublisher{}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.reached = false
}

func (s *RateLimitSuite) serve(ctx context.Context, opts ...Option) *httptest.ResponseRecorder {
	return s.serveMethod(ctx, http.MethodPost, opts...)
}

func (s *RateLimitSuite) serveMethod(ctx context.Context, method string, opts ...Option) *httptest.ResponseRecorder {
	opts = append([]Option{WithMetrics(s.metrics), WithAuditPublisher(s.publisher)}, opts...)
	mw := New(s.limiter, s.logger, opts...)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.reached = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/records", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	mw.RateLimit()(next).ServeHTTP(w, req)
	return w
}

func (s *RateLimitSuite) TestAllowedByIP() {
	s.limiter.result = &models.Result{Allowed: true, Limit: 20, Remaining: 19, ResetAt: time.Unix(1700000000, 0)}
	ctx := metadata.WithClientMetadata(context.Background(), "192.0.2.10", "test")

	w := s.serve(ctx)

	s.Equal(http.StatusOK, w.Code)
	s.True(s.reached)
	s.Equal([]string{"ip:192.0.2.10"}, s.limiter.keys)
	s.Equal("20", w.Header().Get("X-RateLimit-Limit"))
	s.Equal("19", w.Header().Get("X-RateLimit-Remaining"))
	s.Equal("1700000000", w.Header().Get("X-RateLimit-Reset"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Checks.WithLabelValues("ip")))
}

func (s *RateLimitSuite) TestRefusedByHolder() {
	holder := id.HolderID(uuid.New())
	s.limiter.result = &models.Result{Allowed: false, Limit: 20, RetryAfter: 3}
	ctx := requestcontext.WithCaller(context.Background(), requestcontext.Caller{ID: holder, Role: id.RoleViewer})
	ctx = requestcontext.WithRequestID(ctx, "req-7")

	w := s.serve(ctx)

	s.Equal(http.StatusTooManyRequests, w.Code)
	s.False(s.reached)
	s.Equal("3", w.Header().Get("Retry-After"))
	s.Equal([]string{"holder:" + holder.String()}, s.limiter.keys)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	s.Equal("too_many_requests", body["error"])

	s.Require().Len(s.publisher.events, 1)
	s.Equal(string(audit.EventRateLimitExceeded), s.publisher.events[0].Action)
	s.Equal(holder, s.publisher.events[0].HolderID)
	s.Equal("req-7", s.publisher.events[0].RequestID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("holder")))
}

func (s *RateLimitSuite) TestLimiterErrorFailsOpen() {
	s.limiter.err = errors.New("boom")

	w := s.serve(context.Background())

	s.Equal(http.StatusOK, w.Code)
	s.True(s.reached)
	s.Empty(w.Header().Get("X-RateLimit-Limit"))
}

func (s *RateLimitSuite) TestDisabledSkipsLimiter() {
	w := s.serve(context.Background(), WithDisabled(true))

	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.limiter.keys)
}

func (s *RateLimitSuite) TestReadsAreNotLimited() {
	s.limiter.result = &models.Result{Allowed: false, RetryAfter: 1}

	w := s.serveMethod(context.Background(), http.MethodGet)

	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.limiter.keys)
}

func TestLimitKeyFallsBackToUnknown(t *testing.T) {
	key, kind := limitKey(context.Background())
	require.Equal(t, "ip", kind)
	assert.Equal(t, "ip:unknown", key)
}
