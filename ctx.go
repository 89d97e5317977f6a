package gabriel

import (
	"context"

	"github.com/goliatone/go-router"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// DefaultContextKey is where the token middleware stores verified claims
const DefaultContextKey = "gabriel-session"

// WithClaimsContext sets the claims in the given context
func WithClaimsContext(r context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the claims from the standard context
func GetClaims(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*SessionClaims)
	return raw, ok && raw != nil
}

// GetRouterClaims extracts the claims from the router context
func GetRouterClaims(ctx router.Context, key string) (*SessionClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(*SessionClaims)
	return claims, ok && claims != nil
}

// ContextEnricher propagates verified claims into the request context
func ContextEnricher(c context.Context, claims any) context.Context {
	if sc, ok := claims.(*SessionClaims); ok {
		return WithClaimsContext(c, sc)
	}
	return c
}
