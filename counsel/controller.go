package counsel

import (
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
)

const MaxMessages = 50

type ChatPayload struct {
	Messages []Message `json:"messages"`
}

func (p ChatPayload) Validate() error {
	errs := validation.Errors{}
	if err := validation.Validate(p.Messages, validation.Required, validation.Length(1, MaxMessages)); err != nil {
		errs["messages"] = err
	}
	for i, m := range p.Messages {
		err := validation.ValidateStruct(&m,
			validation.Field(&m.Role, validation.Required, validation.In(RoleUser, RoleAssistant, RoleSystem)),
			validation.Field(&m.Content, validation.Required, validation.Length(1, 8000)),
		)
		if err != nil {
			errs["messages."+strconv.Itoa(i)] = err
		}
	}
	return errs.Filter()
}

type Controller struct {
	Logger  gabriel.Logger
	Service *Service
	Auth    *gabriel.RouteAuthenticator
}

func NewController(svc *Service, auth *gabriel.RouteAuthenticator) *Controller {
	return &Controller{
		Logger:  gabriel.NopLogger{},
		Service: svc,
		Auth:    auth,
	}
}

func (c *Controller) WithLogger(l gabriel.Logger) *Controller {
	if l != nil {
		c.Logger = l
	}
	return c
}

// RegisterRoutes mounts POST /chat and POST /sermon, usually under /api
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	protected := c.Auth.ProtectedRoute()

	app.Post("/chat", c.Chat, protected).SetName("counsel.chat")
	app.Post("/sermon", c.Sermon, protected).SetName("counsel.sermon")
}

func badInput(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
		WithCode(goerrors.CodeBadRequest)
}

func (c *Controller) Chat(ctx router.Context) error {
	payload := new(ChatPayload)
	if err := ctx.Bind(payload); err != nil {
		return gabriel.RenderError(ctx, c.Logger, badInput(err))
	}
	for i := range payload.Messages {
		payload.Messages[i].Role = strings.ToLower(strings.TrimSpace(payload.Messages[i].Role))
	}
	if err := payload.Validate(); err != nil {
		return gabriel.RenderError(ctx, c.Logger, gabriel.NewValidationError(err))
	}

	reply, err := c.Service.Chat(ctx.Context(), payload.Messages)
	if err != nil {
		return gabriel.RenderError(ctx, c.Logger, err)
	}

	return ctx.JSON(http.StatusOK, reply)
}

func (c *Controller) Sermon(ctx router.Context) error {
	payload := new(SermonRequest)
	if err := ctx.Bind(payload); err != nil {
		return gabriel.RenderError(ctx, c.Logger, badInput(err))
	}
	if err := payload.Validate(); err != nil {
		return gabriel.RenderError(ctx, c.Logger, gabriel.NewValidationError(err))
	}

	sermon, err := c.Service.Sermon(ctx.Context(), *payload)
	if err != nil {
		return gabriel.RenderError(ctx, c.Logger, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{"sermon": sermon})
}
