package gabriel_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/littlegabriel/gabriel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_Public(t *testing.T) {
	now := time.Now()
	u := &gabriel.User{
		ID:           uuid.New(),
		Email:        "x@example.com",
		Name:         "Xavier",
		PasswordHash: "$2a$12$secret",
		Role:         gabriel.RoleAdmin,
		CreatedAt:    &now,
	}

	assert.True(t, u.HasPassword())
	assert.Equal(t, gabriel.PublicUser{
		ID:        u.ID.String(),
		Email:     "x@example.com",
		Name:      "Xavier",
		Role:      gabriel.RoleAdmin,
		CreatedAt: &now,
	}, u.Public())

	var missing *gabriel.User
	assert.False(t, missing.HasPassword())
	assert.Equal(t, gabriel.PublicUser{}, missing.Public())
	assert.False(t, (&gabriel.User{PasswordHash: "   "}).HasPassword())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "x@example.com", gabriel.NormalizeEmail("  X@Example.COM\t"))
	assert.Equal(t, "", gabriel.NormalizeEmail("   "))
}

func TestRoles(t *testing.T) {
	assert.True(t, gabriel.IsValidRole(gabriel.RoleUser))
	assert.True(t, gabriel.IsValidRole(gabriel.RoleAdmin))
	assert.False(t, gabriel.IsValidRole("owner"))

	assert.True(t, gabriel.RoleIsAtLeast(gabriel.RoleAdmin, gabriel.RoleUser))
	assert.False(t, gabriel.RoleIsAtLeast(gabriel.RoleUser, gabriel.RoleAdmin))
	assert.False(t, gabriel.RoleIsAtLeast("owner", gabriel.RoleUser))
	assert.False(t, gabriel.RoleIsAtLeast(gabriel.RoleAdmin, "owner"))

	role, ok := gabriel.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, gabriel.RoleAdmin, role)
	assert.Equal(t, []gabriel.UserRole{gabriel.RoleUser, gabriel.RoleAdmin}, gabriel.GetAllRoles())
}

func TestSessionClaims(t *testing.T) {
	c := &gabriel.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1", ID: "jti-1"},
		UserEmail:        "x@example.com",
		UserRole:         gabriel.RoleAdmin,
	}

	assert.Equal(t, "sub-1", c.UserID())
	assert.Equal(t, "jti-1", c.TokenID())
	assert.True(t, c.HasRole(gabriel.RoleAdmin))
	assert.True(t, c.IsAtLeast(gabriel.RoleUser))
	assert.True(t, c.IsAdmin())
	assert.True(t, c.Expires().IsZero())
	assert.True(t, c.IssuedAt().IsZero())

	c.UID = "uid-1"
	assert.Equal(t, "uid-1", c.UserID())
	assert.Equal(t, gabriel.ClaimsIdentity{ID: "uid-1", Email: "x@example.com", Role: gabriel.RoleAdmin}, c.Identity())

	var none *gabriel.SessionClaims
	assert.False(t, none.IsAdmin())
}

func TestClaimsContext(t *testing.T) {
	claims := &gabriel.SessionClaims{UID: "uid-1"}

	_, ok := gabriel.GetClaims(context.Background())
	assert.False(t, ok)

	ctx := gabriel.WithClaimsContext(context.Background(), claims)
	got, ok := gabriel.GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	enriched := gabriel.ContextEnricher(context.Background(), claims)
	got, ok = gabriel.GetClaims(enriched)
	require.True(t, ok)
	assert.Equal(t, "uid-1", got.UserID())

	untouched := gabriel.ContextEnricher(context.Background(), "not claims")
	_, ok = gabriel.GetClaims(untouched)
	assert.False(t, ok)
}

func TestGetRouterClaims(t *testing.T) {
	claims := &gabriel.SessionClaims{UID: "uid-1"}

	ctx := mockContext()
	_, ok := gabriel.GetRouterClaims(ctx, "")
	assert.False(t, ok)

	ctx.LocalsMock[gabriel.DefaultContextKey] = claims
	got, ok := gabriel.GetRouterClaims(ctx, "")
	require.True(t, ok)
	assert.Same(t, claims, got)

	ctx.LocalsMock["other"] = "string"
	_, ok = gabriel.GetRouterClaims(ctx, "other")
	assert.False(t, ok)
}

func TestSessionObject(t *testing.T) {
	id := uuid.New()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &gabriel.SessionObject{
		UserID:   id.String(),
		Role:     "unknown",
		Issuer:   "gabriel",
		IssuedAt: &issued,
	}

	parsed, err := s.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, gabriel.RoleUser, s.GetRole())
	assert.Contains(t, s.String(), "iss=gabriel")
	assert.Contains(t, s.String(), "role=unknown")

	s.Role = gabriel.RoleAdmin
	assert.Equal(t, gabriel.RoleAdmin, s.GetRole())
}
