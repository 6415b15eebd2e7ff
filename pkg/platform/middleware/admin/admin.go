package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"qualtrack/pkg/requestcontext"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator endpoints with a static X-Admin-Token.
// expected may be the token itself or its bcrypt hash. An empty expected
// token refuses every request.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(expected, r.Header.Get(HeaderAdminToken)) {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated","error_description":"admin token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(expected, sent string) bool {
	if expected == "" || sent == "" {
		return false
	}
	if isBcryptHash(expected) {
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(sent)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(sent), []byte(expected)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
