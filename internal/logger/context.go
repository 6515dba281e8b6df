package logger

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// RequestContext holds per-request logging context threaded through a node
// server worker or an engine call, so a handler deep in the call stack can
// log with the same correlation fields as its caller.
type RequestContext struct {
	ConnectionID string // node server: per-connection correlation id
	NodeIndex    int    // client: which endpoint this call concerns
	Path         string // logical file path
}

// WithContext returns a new context carrying rc.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, logContextKey, rc)
}

// FromContext retrieves the RequestContext from ctx, or nil if absent.
func FromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(logContextKey).(*RequestContext)
	return rc
}

// appendContextFields prepends rc's fields to args, if present in ctx.
func appendContextFields(ctx context.Context, args []any) []any {
	rc := FromContext(ctx)
	if rc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 6+len(args))
	if rc.ConnectionID != "" {
		ctxArgs = append(ctxArgs, KeyConnectionID, rc.ConnectionID)
	}
	if rc.Path != "" {
		ctxArgs = append(ctxArgs, KeyPath, rc.Path)
	}
	ctxArgs = append(ctxArgs, args...)
	return ctxArgs
}
