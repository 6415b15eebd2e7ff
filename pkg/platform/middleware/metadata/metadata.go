package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type contextKeyClientIP struct{}
type contextKeyUserAgent struct{}
type contextKeyDevice struct{}

// ClientMetadata stores the client IP and User-Agent in the context. Apply it
// before rate limiting.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// GetDevice returns a coarse "browser/os" label parsed from the User-Agent,
// "bot" for crawlers, or "" when nothing was recorded.
func GetDevice(ctx context.Context) string {
	if d, ok := ctx.Value(contextKeyDevice{}).(string); ok {
		return d
	}
	return ""
}

func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(contextKeyUserAgent{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata is for tests that skip the middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, clientIP)
	ctx = context.WithValue(ctx, contextKeyUserAgent{}, userAgent)
	ctx = context.WithValue(ctx, contextKeyDevice{}, DeviceLabel(userAgent))
	return ctx
}

// DeviceLabel reduces a User-Agent string to a low-cardinality label for logs.
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	if browser == "" {
		browser = "other"
	}
	if os == "" {
		return browser
	}
	if ua.Mobile() {
		return browser + "/" + os + "/mobile"
	}
	return browser + "/" + os
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
