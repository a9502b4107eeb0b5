package auth

import "context"

// principal is everything the authentication middleware learned about the
// caller. It is stored once per request under principalKey.
type principal struct {
	identity Identity
	token    string
	hasID    bool
}

type principalKey struct{}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// WithPrincipal records the authenticated identity and the bearer token it
// was read from. An empty token is allowed for sessions minted in-process,
// e.g. right after login.
func WithPrincipal(ctx context.Context, id Identity, token string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{identity: id, token: token, hasID: true})
}

// ContextWithIdentity is WithPrincipal without a token. A token already on
// ctx is kept.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return WithPrincipal(ctx, id, principalFrom(ctx).token)
}

// IdentityFromContext returns the caller recorded by WithPrincipal.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	p := principalFrom(ctx)
	return p.identity, p.hasID
}

// TokenFromContext returns the bearer token the caller authenticated with.
func TokenFromContext(ctx context.Context) (string, bool) {
	p := principalFrom(ctx)
	return p.token, p.token != ""
}
