package testutil

import (
	"net/http"
	"time"

	"qualtrack/pkg/requestcontext"
)

// WithCaller attaches caller to the request, the way the auth middleware
// does for authenticated requests.
func WithCaller(req *http.Request, caller requestcontext.Caller) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// AsCallerAt combines WithCaller and WithTime.
func AsCallerAt(req *http.Request, caller requestcontext.Caller, now time.Time) *http.Request {
	return WithTime(WithCaller(req, caller), now)
}
