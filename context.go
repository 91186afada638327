package goIAM

import "context"

type clientIPContextKey struct{}
type activeUserContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP login throttling and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithActiveUser attaches a verified identity to ctx. Middleware calls it
// after [Engine.VerifyAccess] succeeds.
func WithActiveUser(ctx context.Context, user ActiveUser) context.Context {
	return context.WithValue(ctx, activeUserContextKey{}, user)
}

// ActiveUserFromContext returns the identity attached by [WithActiveUser].
func ActiveUserFromContext(ctx context.Context) (ActiveUser, bool) {
	if ctx == nil {
		return ActiveUser{}, false
	}
	user, ok := ctx.Value(activeUserContextKey{}).(ActiveUser)
	return user, ok && user.Subject != ""
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
