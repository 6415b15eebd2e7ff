package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain takes first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:443", "203.0.113.9"},
		{"real ip header", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:443", "198.51.100.4"},
		{"ipv4 remote", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote", nil, "[2001:db8::1]:5555", "2001:db8::1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
		{"nothing", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = GetClientIP(r.Context())
		ua = GetUserAgent(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	req.Header.Set("User-Agent", "qualtrack-test")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.7", ip)
	assert.Equal(t, "qualtrack-test", ua)
}

func TestDeviceLabel(t *testing.T) {
	firefox := "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	assert.True(t, strings.HasPrefix(DeviceLabel(firefox), "Firefox/"))
	assert.Equal(t, "bot", DeviceLabel("Googlebot/2.1 (+http://www.google.com/bot.html)"))
	assert.Equal(t, "unknown", DeviceLabel(""))

	ctx := WithClientMetadata(context.Background(), "192.0.2.1", firefox)
	assert.Equal(t, DeviceLabel(firefox), GetDevice(ctx))
}
