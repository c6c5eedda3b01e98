// ABOUTME: Caller identity carried through request handlers
// ABOUTME: Provides WithCaller/FromContext for propagating the verified subject

package auth

import "context"

// Caller is the verified identity of an API request.
type Caller struct {
	Subject string
}

type callerKey struct{}

// WithCaller returns a new context with the Caller attached.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext returns the Caller, or nil for an unauthenticated context.
func FromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}
