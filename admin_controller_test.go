package gabriel_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/littlegabriel/gabriel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminContext(claims *gabriel.SessionClaims) *router.MockContext {
	ctx := mockContext()
	if claims != nil {
		ctx.LocalsMock[gabriel.DefaultContextKey] = claims
	}
	return ctx
}

func newAdminController(e env) *gabriel.AdminController {
	return gabriel.NewAdminController(e.repo, e.routes).
		WithLogger(gabriel.NopLogger{}).
		WithActivitySink(e.activity)
}

func TestAdminController_List(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.QueriesM["limit"] = "10"
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, newAdminController(e).List(ctx))

	vc := (*body).(router.ViewContext)
	assert.Equal(t, 2, vc["total"])
	users, ok := vc["users"].([]gabriel.PublicUser)
	require.True(t, ok)
	assert.Len(t, users, 2)
}

func TestAdminController_RejectsNonAdmin(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "x@example.com")

	ctx := adminContext(claims)
	body := captureJSON(ctx, http.StatusForbidden)
	require.NoError(t, newAdminController(e).List(ctx))
	assert.Equal(t, gabriel.TextCodeForbidden, (*body).(gabriel.ErrorResponse).Code)

	anon := adminContext(nil)
	body = captureJSON(anon, http.StatusUnauthorized)
	require.NoError(t, newAdminController(e).List(anon))
	assert.Equal(t, gabriel.TextCodeUnauthenticated, (*body).(gabriel.ErrorResponse).Code)
}

func TestAdminController_Show(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	target := e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = target.ID.String()
	body := captureJSON(ctx, http.StatusOK)
	require.NoError(t, newAdminController(e).Show(ctx))
	assert.Equal(t, target.Public().Email, (*body).(router.ViewContext)["user"].(gabriel.PublicUser).Email)

	missing := adminContext(claims)
	missing.ParamsM["userId"] = uuid.NewString()
	body = captureJSON(missing, http.StatusNotFound)
	require.NoError(t, newAdminController(e).Show(missing))
	assert.Equal(t, gabriel.TextCodeNotFound, (*body).(gabriel.ErrorResponse).Code)
}

func TestAdminController_Delete(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	target := e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = target.ID.String()
	ctx.On("NoContent", http.StatusNoContent).Return(nil)

	require.NoError(t, newAdminController(e).Delete(ctx))
	assert.Contains(t, e.activity.types(), gabriel.ActivityEventUserDeleted)

	_, err := e.repo.Users().GetByEmail(context.Background(), "x@example.com")
	assert.Error(t, err)

	_, _, err = e.auther.Login(context.Background(), "x@example.com", testPassword)
	require.Error(t, err)
	assert.Equal(t, gabriel.TextCodeUserNotFound, textCode(t, err))
}

func TestAdminController_DeleteSelfForbidden(t *testing.T) {
	e := newEnv(t)
	admin := e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = admin.ID.String()
	body := captureJSON(ctx, http.StatusForbidden)

	require.NoError(t, newAdminController(e).Delete(ctx))
	assert.Equal(t, gabriel.TextCodeForbidden, (*body).(gabriel.ErrorResponse).Code)

	_, err := e.repo.Users().GetByEmail(context.Background(), "admin@example.com")
	assert.NoError(t, err)
}

func TestUpdateUserPayload_Validate(t *testing.T) {
	role := "owner"
	err := gabriel.UpdateUserPayload{Role: &role}.Validate()
	require.Error(t, err)
	assert.Contains(t, gabriel.FieldErrors(err), "role")

	admin := gabriel.RoleAdmin
	name := "Renamed"
	assert.NoError(t, gabriel.UpdateUserPayload{Role: &admin, Name: &name}.Validate())
	assert.NoError(t, gabriel.UpdateUserPayload{}.Validate())
}

func TestAdminController_UpdatePromotes(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	target := e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = target.ID.String()
	bindJSON(t, ctx, map[string]any{"role": gabriel.RoleAdmin, "name": "  Xavier Prime "})
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, newAdminController(e).Update(ctx))

	user := (*body).(router.ViewContext)["user"].(gabriel.PublicUser)
	assert.Equal(t, gabriel.RoleAdmin, user.Role)
	assert.Equal(t, "Xavier Prime", user.Name)
	assert.Contains(t, e.activity.types(), gabriel.ActivityEventUserRoleChanged)

	stored, err := e.repo.Users().GetByEmail(context.Background(), "x@example.com")
	require.NoError(t, err)
	assert.Equal(t, gabriel.RoleAdmin, stored.Role)
	assert.Equal(t, "Xavier Prime", stored.Name)
}

func TestAdminController_UpdateNameOnly(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	target := e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = target.ID.String()
	bindJSON(t, ctx, map[string]any{"name": "Xav"})
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, newAdminController(e).Update(ctx))

	user := (*body).(router.ViewContext)["user"].(gabriel.PublicUser)
	assert.Equal(t, gabriel.RoleUser, user.Role)
	assert.Equal(t, "Xav", user.Name)
	assert.NotContains(t, e.activity.types(), gabriel.ActivityEventUserRoleChanged)
}

func TestAdminController_UpdateRejectsNonAdmin(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)
	target := e.createUser(t, "y@example.com", "Yara", gabriel.RoleUser, testPassword)
	_, claims := login(t, e, "x@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = target.ID.String()
	body := captureJSON(ctx, http.StatusForbidden)

	require.NoError(t, newAdminController(e).Update(ctx))
	assert.Equal(t, gabriel.TextCodeForbidden, (*body).(gabriel.ErrorResponse).Code)

	stored, err := e.repo.Users().GetByEmail(context.Background(), "y@example.com")
	require.NoError(t, err)
	assert.Equal(t, gabriel.RoleUser, stored.Role)
}

func TestAdminController_DeleteAnonymous(t *testing.T) {
	e := newEnv(t)
	target := e.createUser(t, "x@example.com", "Xavier", gabriel.RoleUser, testPassword)

	ctx := adminContext(nil)
	ctx.ParamsM["userId"] = target.ID.String()
	body := captureJSON(ctx, http.StatusUnauthorized)

	require.NoError(t, newAdminController(e).Delete(ctx))
	assert.Equal(t, gabriel.TextCodeUnauthenticated, (*body).(gabriel.ErrorResponse).Code)

	_, err := e.repo.Users().GetByEmail(context.Background(), "x@example.com")
	assert.NoError(t, err)
}

func TestAdminController_UpdateSelfDemotionForbidden(t *testing.T) {
	e := newEnv(t)
	admin := e.createUser(t, "admin@example.com", "Admin", gabriel.RoleAdmin, testPassword)
	_, claims := login(t, e, "admin@example.com")

	ctx := adminContext(claims)
	ctx.ParamsM["userId"] = admin.ID.String()
	bindJSON(t, ctx, map[string]any{"role": gabriel.RoleUser, "name": "Renamed"})
	body := captureJSON(ctx, http.StatusForbidden)

	require.NoError(t, newAdminController(e).Update(ctx))
	assert.Equal(t, gabriel.TextCodeForbidden, (*body).(gabriel.ErrorResponse).Code)

	stored, err := e.repo.Users().GetByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, gabriel.RoleAdmin, stored.Role)
	assert.Equal(t, "Admin", stored.Name)
}
