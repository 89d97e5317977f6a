package prayer_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/prayer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type fixture struct {
	db    *bun.DB
	ctrl  *prayer.Controller
	store prayer.Store
	owner *gabriel.User
	other *gabriel.User
	admin *gabriel.User
}

func newFixture(t *testing.T) fixture {
	db := setupDB(t)
	store := prayer.NewStore(db)
	auth := gabriel.NewHTTPAuthenticator(nil, testConfig{}).WithLogger(gabriel.NopLogger{})

	return fixture{
		db:    db,
		ctrl:  prayer.NewController(db, store, auth),
		store: store,
		owner: createUser(t, db, "x@example.com", "Xavier", gabriel.RoleUser),
		other: createUser(t, db, "y@example.com", "Yara", gabriel.RoleUser),
		admin: createUser(t, db, "admin@example.com", "Admin", gabriel.RoleAdmin),
	}
}

func (f fixture) submit(t *testing.T, title string, anonymous bool, status prayer.Status) *prayer.Request {
	t.Helper()
	ctx := context.Background()
	r, err := f.store.Submit(ctx, &prayer.Request{
		Title:       title,
		Content:     "Please pray for recovery",
		IsAnonymous: anonymous,
		UserID:      f.owner.ID,
	})
	require.NoError(t, err)
	if status != prayer.StatusPending {
		_, err = f.ctrl.Moderation.Transition(ctx, f.db, claimsFor(f.admin), r, status)
		require.NoError(t, err)
	}
	return r
}

func mockContext(claims *gabriel.SessionClaims) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Path").Return("/api/prayer-requests").Maybe()
	if claims != nil {
		ctx.LocalsMock[gabriel.DefaultContextKey] = claims
	}
	return ctx
}

func captureJSON(ctx *router.MockContext, status int) *router.ViewContext {
	out := &router.ViewContext{}
	ctx.On("JSON", status, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		if vc, ok := args.Get(1).(router.ViewContext); ok {
			*out = vc
		}
	})
	return out
}

func TestController_ShowAnonymousToOtherUser(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "Healing", true, prayer.StatusPending)

	ctx := mockContext(claimsFor(f.other))
	ctx.ParamsM["id"] = created.ID.String()
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, f.ctrl.Show(ctx))

	view, ok := (*body)["prayerRequest"].(prayer.View)
	require.True(t, ok)
	assert.Equal(t, "Anonymous", view.User.Name)
	assert.Empty(t, view.UserID)
	assert.Equal(t, "Healing", view.Title)
}

func TestController_ShowRoundTripAsOwner(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "Healing", true, prayer.StatusPending)

	ctx := mockContext(claimsFor(f.owner))
	ctx.ParamsM["id"] = created.ID.String()
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, f.ctrl.Show(ctx))

	view := (*body)["prayerRequest"].(prayer.View)
	assert.Equal(t, "Healing", view.Title)
	assert.Equal(t, "Please pray for recovery", view.Content)
	assert.True(t, view.IsAnonymous)
	assert.Equal(t, "Xavier", view.User.Name)
	assert.Equal(t, f.owner.ID.String(), view.UserID)
}

func TestController_ShowRejectedHiddenFromOthers(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "T", false, prayer.StatusRejected)

	ctx := mockContext(claimsFor(f.other))
	ctx.ParamsM["id"] = created.ID.String()
	ctx.On("JSON", http.StatusNotFound, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Show(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusNotFound, mock.Anything)
}

func TestController_ShowInvalidID(t *testing.T) {
	f := newFixture(t)

	ctx := mockContext(nil)
	ctx.ParamsM["id"] = "not-a-uuid"
	ctx.On("JSON", http.StatusNotFound, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Show(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusNotFound, mock.Anything)
}

func TestController_ListForVisitor(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "approved", true, prayer.StatusApproved)
	f.submit(t, "pending", false, prayer.StatusPending)
	f.submit(t, "rejected", false, prayer.StatusRejected)

	ctx := mockContext(nil)
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, f.ctrl.List(ctx))

	views := (*body)["prayerRequests"].([]prayer.View)
	require.Len(t, views, 1)
	assert.Equal(t, "approved", views[0].Title)
	assert.Equal(t, prayer.AnonymousName, views[0].User.Name)
	assert.Equal(t, 1, (*body)["total"])
}

func TestController_ListMineRequiresSession(t *testing.T) {
	f := newFixture(t)

	ctx := mockContext(nil)
	ctx.QueriesM["mine"] = "true"
	ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.List(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusUnauthorized, mock.Anything)
}

func TestController_ListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)

	ctx := mockContext(claimsFor(f.admin))
	ctx.QueriesM["status"] = "archived"
	ctx.On("JSON", http.StatusBadRequest, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.List(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusBadRequest, mock.Anything)
}

func TestController_DeleteByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "T", false, prayer.StatusApproved)

	ctx := mockContext(claimsFor(f.other))
	ctx.ParamsM["id"] = created.ID.String()
	ctx.On("JSON", http.StatusForbidden, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Delete(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusForbidden, mock.Anything)

	_, err := f.store.Find(context.Background(), created.ID)
	require.NoError(t, err)
}

func TestController_DeleteByAdmin(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "T", false, prayer.StatusPending)

	ctx := mockContext(claimsFor(f.admin))
	ctx.ParamsM["id"] = created.ID.String()
	ctx.On("NoContent", http.StatusNoContent).Return(nil)

	require.NoError(t, f.ctrl.Delete(ctx))

	_, err := f.store.Find(context.Background(), created.ID)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestController_DeleteWithoutSession(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "T", false, prayer.StatusPending)

	ctx := mockContext(nil)
	ctx.ParamsM["id"] = created.ID.String()
	ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Delete(ctx))
	ctx.AssertCalled(t, "JSON", http.StatusUnauthorized, mock.Anything)
}

func TestController_CreateReturnsAuthorName(t *testing.T) {
	f := newFixture(t)

	ctx := mockContext(claimsFor(f.owner))
	bindJSON(t, ctx, map[string]any{"title": "  Healing ", "content": " For my mother "})
	body := captureJSON(ctx, http.StatusCreated)

	require.NoError(t, f.ctrl.Create(ctx))

	view := (*body)["prayerRequest"].(prayer.View)
	assert.Equal(t, "Healing", view.Title)
	assert.Equal(t, "For my mother", view.Content)
	assert.Equal(t, prayer.StatusPending, view.Status)
	assert.Equal(t, "Xavier", view.User.Name)
	assert.Equal(t, f.owner.ID.String(), view.UserID)
	assert.True(t, view.IsOwner)
}

func TestController_UpdateTrimsBeforeValidating(t *testing.T) {
	f := newFixture(t)
	created := f.submit(t, "Healing", false, prayer.StatusPending)

	blank := mockContext(claimsFor(f.owner))
	blank.ParamsM["id"] = created.ID.String()
	bindJSON(t, blank, map[string]any{"title": "   "})
	blank.On("JSON", http.StatusBadRequest, mock.Anything).Return(nil)

	require.NoError(t, f.ctrl.Update(blank))
	blank.AssertCalled(t, "JSON", http.StatusBadRequest, mock.Anything)

	stored, err := f.store.Find(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Healing", stored.Title)

	ctx := mockContext(claimsFor(f.owner))
	ctx.ParamsM["id"] = created.ID.String()
	bindJSON(t, ctx, map[string]any{"title": "  Strength  "})
	body := captureJSON(ctx, http.StatusOK)

	require.NoError(t, f.ctrl.Update(ctx))
	view := (*body)["prayerRequest"].(prayer.View)
	assert.Equal(t, "Strength", view.Title)
	assert.Equal(t, "Xavier", view.User.Name)
}

func TestPayloadValidation(t *testing.T) {
	assert.Error(t, prayer.CreatePayload{Title: "", Content: "c"}.Validate())
	assert.Error(t, prayer.CreatePayload{Title: "t", Content: ""}.Validate())
	assert.NoError(t, prayer.CreatePayload{Title: "t", Content: "c"}.Validate())

	bad := "archived"
	assert.Error(t, prayer.UpdatePayload{Status: &bad}.Validate())
	empty := ""
	assert.Error(t, prayer.UpdatePayload{Title: &empty}.Validate())
	ok := "approved"
	assert.NoError(t, prayer.UpdatePayload{Status: &ok}.Validate())
}
