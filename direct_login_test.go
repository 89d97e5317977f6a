package gabriel_test

import (
	"context"
	"testing"
	"time"

	"github.com/littlegabriel/gabriel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectTokenIssuer_Issue(t *testing.T) {
	e := newEnv(t)
	user := e.createUser(t, "x@example.com", "Xavier O'Neil", gabriel.RoleUser, testPassword)

	ctx := mockContext()
	jar := captureCookies(ctx)

	issuer := gabriel.NewDirectTokenIssuer(e.routes).
		WithLogger(gabriel.NopLogger{}).
		WithActivitySink(e.activity)

	claims, err := issuer.Issue(context.Background(), ctx, "x@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())

	require.Contains(t, jar, gabriel.DirectTokenCookie)
	require.Contains(t, jar, gabriel.DirectUserCookie)
	require.Contains(t, jar, gabriel.SiteAuthCookie)

	assert.True(t, jar[gabriel.DirectTokenCookie].HTTPOnly)
	assert.False(t, jar[gabriel.DirectUserCookie].HTTPOnly)
	assert.Equal(t, "true", jar[gabriel.SiteAuthCookie].Value)
	assert.WithinDuration(t, time.Now().Add(gabriel.DirectCookieTTL), jar[gabriel.DirectTokenCookie].Expires, time.Minute)

	identity, err := gabriel.DecodeUserCookie(jar[gabriel.DirectUserCookie].Value)
	require.NoError(t, err)
	assert.Equal(t, claims.Identity(), identity)

	assert.Contains(t, e.activity.types(), gabriel.ActivityEventDirectLogin)
}

func TestDirectTokenIssuer_TokenPassesProtectedRoute(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "x@example.com", "Xavier", gabriel.RoleAdmin, testPassword)

	loginCtx := mockContext()
	jar := captureCookies(loginCtx)
	_, err := gabriel.NewDirectTokenIssuer(e.routes).WithLogger(gabriel.NopLogger{}).
		Issue(context.Background(), loginCtx, "x@example.com", testPassword)
	require.NoError(t, err)

	ctx := mockContext()
	ctx.CookiesM[gabriel.DirectTokenCookie] = jar[gabriel.DirectTokenCookie].Value

	called, err := serve(e.routes.RequireRole(gabriel.RoleAdmin), ctx)
	require.NoError(t, err)
	assert.True(t, called)

	claims, ok := e.routes.Claims(ctx)
	require.True(t, ok)
	assert.Equal(t, "x@example.com", claims.Email())
}

func TestDirectTokenIssuer_BadCredentialsSetNoCookies(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)

	ctx := mockContext()
	jar := captureCookies(ctx)

	_, err := gabriel.NewDirectTokenIssuer(e.routes).WithLogger(gabriel.NopLogger{}).
		Issue(context.Background(), ctx, "x@example.com", "wrong password")
	require.Error(t, err)
	assert.Equal(t, gabriel.TextCodeInvalidCredentials, textCode(t, err))
	assert.Empty(t, jar)
}

func TestUserCookie_RoundTrip(t *testing.T) {
	identity := gabriel.ClaimsIdentity{
		ID:    "4b8f2a1e-0000-4000-8000-000000000001",
		Email: "x+tag@example.com",
		Name:  "Xavier O'Neil; Jr",
		Role:  gabriel.RoleUser,
	}

	encoded, err := gabriel.EncodeUserCookie(identity)
	require.NoError(t, err)
	assert.NotContains(t, encoded, " ")
	assert.NotContains(t, encoded, ";")
	assert.NotContains(t, encoded, "+")

	decoded, err := gabriel.DecodeUserCookie(encoded)
	require.NoError(t, err)
	assert.Equal(t, identity, decoded)
}

func TestDecodeUserCookie_Invalid(t *testing.T) {
	_, err := gabriel.DecodeUserCookie("")
	assert.ErrorIs(t, err, gabriel.ErrUnableToParseData)

	_, err = gabriel.DecodeUserCookie("%7Bnot-json")
	assert.ErrorIs(t, err, gabriel.ErrUnableToParseData)

	identity, err := gabriel.DecodeUserCookie(`{"id":"1","email":"x@example.com","name":"X","role":"user"}`)
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", identity.Email)
}
