// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the authenticated caller, request ID and request time; services read
// them back without importing net/http.
//
// Usage in services (read values):
//
//	caller := requestcontext.CallerFrom(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithCaller(ctx, requestcontext.Caller{ID: holderID, Role: domain.RoleEditor})
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "qualtrack/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyCaller      = callerKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Caller is the authenticated identity on whose behalf an engine call runs.
// It is passed explicitly into every engine operation so authorization checks
// stay pure.
type Caller struct {
	ID    id.HolderID
	Role  id.Role
	OrgID id.OrgID
}

// IsZero reports whether no caller is set.
func (c Caller) IsZero() bool {
	return c.ID.IsNil()
}

// IsReviewer reports whether the caller may review records and requests.
func (c Caller) IsReviewer() bool {
	return c.Role.IsReviewer()
}

// CanManage reports whether the caller may act as a reviewer over holders of
// orgID. Admins reach every organization; org admins only their own.
func (c Caller) CanManage(orgID id.OrgID) bool {
	switch c.Role {
	case id.RoleAdmin:
		return true
	case id.RoleOrgAdmin:
		return !c.OrgID.IsNil() && c.OrgID == orgID
	}
	return false
}

// -----------------------------------------------------------------------------
// Caller
// -----------------------------------------------------------------------------

// CallerFrom retrieves the authenticated caller from the context.
// Returns the zero Caller if not set.
func CallerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(ContextKeyCaller).(Caller); ok {
		return c
	}
	return Caller{}
}

// WithCaller injects the authenticated caller into the context.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, c)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
