package prayer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.Migrate(ctx, db))
	return db
}

func createUser(t *testing.T, db *bun.DB, email, name string, role gabriel.UserRole) *gabriel.User {
	t.Helper()
	user, err := gabriel.NewUsersRepository(db).Register(context.Background(), &gabriel.User{
		Email: email,
		Name:  name,
		Role:  role,
	})
	require.NoError(t, err)
	return user
}

func claimsFor(u *gabriel.User) *gabriel.SessionClaims {
	return &gabriel.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ID:        "jti-" + u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UID:       u.ID.String(),
		UserEmail: u.Email,
		UserName:  u.Name,
		UserRole:  u.Role,
	}
}

type testConfig struct{}

func (testConfig) GetSigningKey() string           { return "test-signing-key" }
func (testConfig) GetSigningMethod() string        { return "HS256" }
func (testConfig) GetContextKey() string           { return gabriel.DefaultContextKey }
func (testConfig) GetTokenExpiration() int         { return 1 }
func (testConfig) GetTokenLookup() string          { return gabriel.DefaultTokenLookup }
func (testConfig) GetAuthScheme() string           { return "Bearer" }
func (testConfig) GetIssuer() string               { return "gabriel-test" }
func (testConfig) GetAudience() []string           { return []string{"gabriel-test"} }
func (testConfig) GetRejectedRouteKey() string     { return "rejected" }
func (testConfig) GetRejectedRouteDefault() string { return "/" }
func (testConfig) GetSecureCookies() bool          { return false }

// bindJSON answers Bind by decoding body into the handler payload
func bindJSON(t *testing.T, ctx *router.MockContext, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(raw, args.Get(0)))
	})
}
