package jwtware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel/middleware/jwtware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type claims struct {
	sub  string
	role string
	jti  string
}

func (c claims) Subject() string { return c.sub }
func (c claims) UserID() string  { return c.sub }
func (c claims) Role() string    { return c.role }
func (c claims) TokenID() string { return c.jti }
func (c claims) HasRole(r string) bool {
	return c.role == r
}
func (c claims) IsAtLeast(min string) bool {
	rank := map[string]int{"user": 0, "admin": 1}
	have, ok := rank[c.role]
	if !ok {
		return false
	}
	want, ok := rank[min]
	return ok && have >= want
}

var errBadToken = errors.New("bad token")

func validator(valid map[string]claims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(raw string) (jwtware.AuthClaims, error) {
		c, ok := valid[raw]
		if !ok {
			return nil, errBadToken
		}
		return c, nil
	})
}

type result struct {
	nextCalled bool
	err        error
}

func newContext() *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return().Maybe()
	return ctx
}

func run(cfg jwtware.Config, ctx router.Context) result {
	res := result{}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(_ router.Context, err error) error {
			res.err = err
			return nil
		}
	}
	handler := jwtware.New(cfg)(func(router.Context) error {
		res.nextCalled = true
		return nil
	})
	if err := handler(ctx); err != nil {
		res.err = err
	}
	return res
}

func TestNew_BearerHeader(t *testing.T) {
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer good"

	res := run(jwtware.Config{
		TokenValidator: validator(map[string]claims{"good": {sub: "u1", role: "user"}}),
		ContextKey:     "session",
	}, ctx)

	require.NoError(t, res.err)
	assert.True(t, res.nextCalled)
	assert.Equal(t, claims{sub: "u1", role: "user"}, ctx.LocalsMock["session"])
}

func TestNew_MissingToken(t *testing.T) {
	ctx := newContext()

	res := run(jwtware.Config{TokenValidator: validator(nil)}, ctx)

	assert.False(t, res.nextCalled)
	assert.ErrorIs(t, res.err, jwtware.ErrJWTMissingOrMalformed)
}

func TestNew_WrongScheme(t *testing.T) {
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Basic good"

	res := run(jwtware.Config{TokenValidator: validator(map[string]claims{"good": {}})}, ctx)

	assert.False(t, res.nextCalled)
	assert.ErrorIs(t, res.err, jwtware.ErrJWTMissingOrMalformed)
}

func TestNew_FallsThroughToCookie(t *testing.T) {
	ctx := newContext()
	ctx.CookiesM["direct"] = "from-cookie"

	res := run(jwtware.Config{
		TokenLookup:    "header:Authorization,cookie:session,cookie:direct",
		TokenValidator: validator(map[string]claims{"from-cookie": {sub: "u2", role: "user"}}),
	}, ctx)

	require.NoError(t, res.err)
	assert.True(t, res.nextCalled)
}

func TestNew_ValidatorError(t *testing.T) {
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer forged"

	res := run(jwtware.Config{TokenValidator: validator(nil)}, ctx)

	assert.False(t, res.nextCalled)
	assert.ErrorIs(t, res.err, errBadToken)
}

func TestNew_ListenerRejects(t *testing.T) {
	revoked := errors.New("revoked")
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer good"

	var seen []string
	res := run(jwtware.Config{
		TokenValidator: validator(map[string]claims{"good": {sub: "u1", jti: "j1"}}),
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(_ router.Context, c jwtware.AuthClaims) error {
				seen = append(seen, c.TokenID())
				return revoked
			},
			func(router.Context, jwtware.AuthClaims) error {
				seen = append(seen, "never")
				return nil
			},
		},
	}, ctx)

	assert.False(t, res.nextCalled)
	assert.ErrorIs(t, res.err, revoked)
	assert.Equal(t, []string{"j1"}, seen)
}

func TestNew_MinimumRole(t *testing.T) {
	tokens := map[string]claims{
		"user":  {sub: "u1", role: "user"},
		"admin": {sub: "a1", role: "admin"},
	}

	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer user"
	res := run(jwtware.Config{TokenValidator: validator(tokens), MinimumRole: "admin"}, ctx)

	assert.False(t, res.nextCalled)
	assert.ErrorIs(t, res.err, jwtware.ErrAccessDenied)
	var denied *jwtware.AccessDeniedError
	require.ErrorAs(t, res.err, &denied)
	assert.Equal(t, "admin", denied.Required)
	assert.Equal(t, "user", denied.Actual)

	ctx = newContext()
	ctx.HeadersM["Authorization"] = "Bearer admin"
	res = run(jwtware.Config{TokenValidator: validator(tokens), MinimumRole: "admin"}, ctx)
	require.NoError(t, res.err)
	assert.True(t, res.nextCalled)
}

func TestNew_RequiredRoleIsExact(t *testing.T) {
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer admin"

	res := run(jwtware.Config{
		TokenValidator: validator(map[string]claims{"admin": {role: "admin"}}),
		RequiredRole:   "user",
	}, ctx)

	assert.ErrorIs(t, res.err, jwtware.ErrAccessDenied)
}

func TestNew_ContextEnricher(t *testing.T) {
	ctx := newContext()
	ctx.HeadersM["Authorization"] = "Bearer good"

	var enriched jwtware.AuthClaims
	res := run(jwtware.Config{
		TokenValidator: validator(map[string]claims{"good": {sub: "u1"}}),
		ContextEnricher: func(c context.Context, cl jwtware.AuthClaims) context.Context {
			enriched = cl
			return c
		},
	}, ctx)

	require.NoError(t, res.err)
	require.NotNil(t, enriched)
	assert.Equal(t, "u1", enriched.Subject())
}

func TestNew_FilterSkips(t *testing.T) {
	ctx := newContext()

	res := run(jwtware.Config{
		TokenValidator: validator(nil),
		Filter:         func(router.Context) bool { return true },
	}, ctx)

	require.NoError(t, res.err)
	assert.True(t, res.nextCalled)
}

func TestGetExtractors(t *testing.T) {
	assert.Len(t, jwtware.GetExtractors("header:Authorization,cookie:a, cookie:b,query:token,bogus"), 4)
	assert.Empty(t, jwtware.GetExtractors(""))
}

func TestGetDefaultConfig(t *testing.T) {
	assert.Panics(t, func() { jwtware.GetDefaultConfig() })

	cfg := jwtware.GetDefaultConfig(jwtware.Config{TokenValidator: validator(nil)})
	assert.Equal(t, "user", cfg.ContextKey)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, "header:Authorization", cfg.TokenLookup)
	assert.NotNil(t, cfg.ErrorHandler)
}
