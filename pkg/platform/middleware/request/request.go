// Package request assigns every request a correlation id.
package request

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"qualtrack/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

// inbound ids are kept only when they are short and log-safe.
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID reuses a well-formed X-Request-ID header or generates one, stores
// it in the context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if !validID.MatchString(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), requestID)))
	})
}
