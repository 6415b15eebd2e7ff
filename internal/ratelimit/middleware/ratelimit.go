package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"qualtrack/internal/ratelimit/metrics"
	"qualtrack/internal/ratelimit/models"
	dErrors "qualtrack/pkg/domain-errors"
	audit "qualtrack/pkg/platform/audit"
	"qualtrack/pkg/platform/httputil"
	metadata "qualtrack/pkg/platform/middleware/metadata"
	"qualtrack/pkg/requestcontext"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (*models.Result, error)
}

// AuditPublisher receives refusals. Emission is best effort.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Middleware struct {
	limiter   RateLimiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher AuditPublisher
	disabled  bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Middleware) {
		m.publisher = p
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit applies to mutating requests. It keys on the authenticated holder
// when there is one and on the client IP otherwise. Limiter failures let the
// request through.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key, kind := limitKey(ctx)

			result, err := m.limiter.Allow(ctx, key)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "kind", kind)
				next.ServeHTTP(w, r)
				return
			}
			m.metrics.ObserveCheck(kind, result.Allowed)

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.emitExceeded(ctx, key, kind)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func limitKey(ctx context.Context) (key, kind string) {
	if caller := requestcontext.CallerFrom(ctx); !caller.IsZero() {
		return models.KeyPrefixHolder + caller.ID.String(), "holder"
	}
	ip := metadata.GetClientIP(ctx)
	if ip == "" {
		ip = "unknown"
	}
	return models.KeyPrefixIP + ip, "ip"
}

func (m *Middleware) emitExceeded(ctx context.Context, key, kind string) {
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"kind", kind,
		"device", metadata.GetDevice(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	if m.publisher == nil {
		return
	}
	event := audit.Event{
		Action:    string(audit.EventRateLimitExceeded),
		Subject:   key,
		Decision:  "denied",
		RequestID: requestcontext.RequestID(ctx),
	}
	if caller := requestcontext.CallerFrom(ctx); !caller.IsZero() {
		event.HolderID = caller.ID
		event.ActorID = caller.ID.String()
	}
	if err := m.publisher.Emit(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "failed to emit rate limit audit event", "error", err)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many requests, try again later"))
}
