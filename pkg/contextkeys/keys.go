// Package contextkeys defines the context keys shared across packages.
// Keeping them in one place avoids collisions and import cycles between
// the middleware that sets them and the handlers that read them.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: auth.Middleware (pkg/auth/middleware.go)
	// Required by: All protected API endpoints
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, departure records
	RequestIDKey Key = "request_id"
)

// WithAuth adds authentication context to the context. The value is
// typed as interface{} so auth can depend on this package and not the
// other way around.
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds the request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID, or "" when unset
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
