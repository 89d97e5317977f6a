package gabriel

import (
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// AdminController manages accounts. Every route requires the admin role.
type AdminController struct {
	Logger   Logger
	Repo     RepositoryManager
	Auth     *RouteAuthenticator
	Activity ActivitySink
}

func NewAdminController(repo RepositoryManager, auth *RouteAuthenticator) *AdminController {
	return &AdminController{
		Logger:   defLogger{},
		Repo:     repo,
		Auth:     auth,
		Activity: noopActivitySink{},
	}
}

func (a *AdminController) WithLogger(l Logger) *AdminController {
	a.Logger = ensureLogger(l)
	return a
}

func (a *AdminController) WithActivitySink(sink ActivitySink) *AdminController {
	a.Activity = normalizeActivitySink(sink)
	return a
}

// RegisterAdminRoutes mounts the controller, usually on /api/admin/users
func RegisterAdminRoutes[T any](app router.Router[T], controller *AdminController) {
	admin := controller.Auth.RequireRole(RoleAdmin)

	app.Get("/", controller.List, admin).SetName("admin.users.list")
	app.Get("/:userId", controller.Show, admin).SetName("admin.users.show")
	app.Put("/:userId", controller.Update, admin).SetName("admin.users.update")
	app.Delete("/:userId", controller.Delete, admin).SetName("admin.users.delete")
}

func (a *AdminController) actor(ctx router.Context) (*SessionClaims, error) {
	claims, ok := a.Auth.Claims(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !claims.IsAdmin() {
		return nil, ErrForbidden
	}
	return claims, nil
}

func (a *AdminController) List(ctx router.Context) error {
	if _, err := a.actor(ctx); err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	offset, _ := strconv.Atoi(ctx.Query("offset", "0"))

	records, total, err := a.Repo.Users().ListUsers(ctx.Context(), limit, offset)
	if err != nil {
		return RenderError(ctx, a.Logger, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list users"))
	}

	out := make([]PublicUser, 0, len(records))
	for _, u := range records {
		out = append(out, u.Public())
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"users": out,
		"total": total,
	})
}

func (a *AdminController) findUser(ctx router.Context) (*User, error) {
	id := ctx.Param("userId", "")
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
	}
	return user, nil
}

func (a *AdminController) Show(ctx router.Context) error {
	if _, err := a.actor(ctx); err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	user, err := a.findUser(ctx)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"user": user.Public()})
}

// UpdateUserPayload fields are optional, absent means unchanged
type UpdateUserPayload struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

func (p UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Role, validation.NilOrNotEmpty, validation.In(RoleUser, RoleAdmin)),
	)
}

func (a *AdminController) Update(ctx router.Context) error {
	claims, err := a.actor(ctx)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	payload := new(UpdateUserPayload)
	if err := ctx.Bind(payload); err != nil {
		return RenderError(ctx, a.Logger, errInvalidBody(err))
	}

	if err := payload.Validate(); err != nil {
		return RenderError(ctx, a.Logger, NewValidationError(err))
	}

	user, err := a.findUser(ctx)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	if payload.Role == nil && payload.Name == nil {
		return ctx.JSON(http.StatusOK, router.ViewContext{"user": user.Public()})
	}

	msg := PromoteUserMessage{
		Identifier: user.ID.String(),
		Name:       payload.Name,
		Actor:      ActorFromClaims(claims),
		OnResponse: func(u *User) { user = u },
	}
	if payload.Role != nil {
		msg.Role = *payload.Role
	}

	err = NewPromoteUserHandler(a.Repo).
		WithLogger(a.Logger).
		WithActivitySink(a.Activity).
		Execute(ctx.Context(), msg)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"user": user.Public()})
}

func (a *AdminController) Delete(ctx router.Context) error {
	claims, err := a.actor(ctx)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	user, err := a.findUser(ctx)
	if err != nil {
		return RenderError(ctx, a.Logger, err)
	}

	if user.ID.String() == claims.UserID() {
		return RenderError(ctx, a.Logger, goerrors.New("administrators cannot delete their own account", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(TextCodeForbidden))
	}

	if err := a.Repo.Users().SoftDelete(ctx.Context(), user.ID); err != nil {
		if isRecordNotFound(err) {
			return RenderError(ctx, a.Logger, ErrNotFound)
		}
		return RenderError(ctx, a.Logger, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user"))
	}

	recordActivity(ctx.Context(), a.Activity, a.Logger, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     ActorFromClaims(claims),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"email": user.Email},
	})

	return ctx.NoContent(http.StatusNoContent)
}
