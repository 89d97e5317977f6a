package prayer

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/littlegabriel/gabriel"
	"github.com/uptrace/bun"
)

const requestTimeout = 10 * time.Second

// TxRunner opens a transaction, *bun.DB satisfies it
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

type Controller struct {
	Logger     gabriel.Logger
	Store      Store
	Tx         TxRunner
	Moderation *Moderation
	Auth       *gabriel.RouteAuthenticator
}

func NewController(db TxRunner, store Store, auth *gabriel.RouteAuthenticator) *Controller {
	return &Controller{
		Logger:     gabriel.NopLogger{},
		Store:      store,
		Tx:         db,
		Moderation: NewModeration(store),
		Auth:       auth,
	}
}

func (c *Controller) WithLogger(l gabriel.Logger) *Controller {
	if l != nil {
		c.Logger = l
		c.Moderation.logger = l
	}
	return c
}

func (c *Controller) WithActivitySink(sink gabriel.ActivitySink) *Controller {
	if sink != nil {
		c.Moderation.activity = sink
	}
	return c
}

// RegisterRoutes mounts the controller, usually on /api/prayer-requests
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	optional := c.Auth.OptionalRoute()
	protected := c.Auth.ProtectedRoute()

	app.Get("/", c.List, optional).SetName("prayer.list")
	app.Post("/", c.Create, protected).SetName("prayer.create")
	app.Get("/:id", c.Show, optional).SetName("prayer.show")
	app.Put("/:id", c.Update, protected).SetName("prayer.update")
	app.Delete("/:id", c.Delete, protected).SetName("prayer.delete")
}

func (c *Controller) viewer(ctx router.Context) (Viewer, *gabriel.SessionClaims) {
	claims, ok := c.Auth.Claims(ctx)
	if !ok {
		return Viewer{}, nil
	}
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return Viewer{}, nil
	}
	return Viewer{ID: id, Admin: claims.IsAdmin()}, claims
}

func (c *Controller) fail(ctx router.Context, err error) error {
	return gabriel.RenderError(ctx, c.Logger, err)
}

func errNotFound() *goerrors.Error {
	return goerrors.New("Prayer request not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(gabriel.TextCodeNotFound)
}

func errForbidden(msg string) *goerrors.Error {
	return goerrors.New(msg, goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(gabriel.TextCodeForbidden)
}

func badInput(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
		WithCode(goerrors.CodeBadRequest)
}

func (c *Controller) List(ctx router.Context) error {
	viewer, _ := c.viewer(ctx)

	filter := ListFilter{
		Status: Status(strings.ToLower(ctx.Query("status", ""))),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return c.fail(ctx, gabriel.NewValidationError(validation.Errors{
			"status": errors.New("must be a valid value"),
		}))
	}

	if mine, _ := strconv.ParseBool(ctx.Query("mine", "false")); mine {
		if viewer.ID == uuid.Nil {
			return c.fail(ctx, gabriel.ErrUnauthenticated)
		}
		filter.Mine = true
	}

	filter.Limit, _ = strconv.Atoi(ctx.Query("limit", "0"))
	filter.Offset, _ = strconv.Atoi(ctx.Query("offset", "0"))

	records, total, err := c.Store.ListVisible(ctx.Context(), viewer, filter)
	if err != nil {
		return c.fail(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list prayer requests"))
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"prayerRequests": PresentAll(viewer, records),
		"total":          total,
	})
}

// CreatePayload is the body of POST /
type CreatePayload struct {
	Title       string `json:"title" form:"title"`
	Content     string `json:"content" form:"content"`
	IsAnonymous bool   `json:"isAnonymous" form:"isAnonymous"`
}

func (p CreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Content, validation.Required, validation.Length(1, 5000)),
	)
}

func (c *Controller) Create(ctx router.Context) error {
	viewer, claims := c.viewer(ctx)
	if claims == nil {
		return c.fail(ctx, gabriel.ErrUnauthenticated)
	}

	payload := new(CreatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.fail(ctx, badInput(err))
	}
	payload.Title = strings.TrimSpace(payload.Title)
	payload.Content = strings.TrimSpace(payload.Content)

	if err := payload.Validate(); err != nil {
		return c.fail(ctx, gabriel.NewValidationError(err))
	}

	record, err := c.Store.Submit(ctx.Context(), &Request{
		Title:       payload.Title,
		Content:     payload.Content,
		IsAnonymous: payload.IsAnonymous,
		UserID:      viewer.ID,
	})
	if err != nil {
		return c.fail(ctx, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create prayer request"))
	}

	if loaded, err := c.Store.Find(ctx.Context(), record.ID); err == nil {
		record = loaded
	} else {
		c.Logger.Warn("prayer request author not loaded", "id", record.ID, "error", err)
		record.User = &gabriel.User{ID: viewer.ID, Name: claims.Name()}
	}

	return ctx.JSON(http.StatusCreated, router.ViewContext{
		"prayerRequest": Present(viewer, record),
	})
}

func (c *Controller) load(ctx context.Context, tx bun.IDB, raw string) (*Request, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errNotFound()
	}
	var record *Request
	if tx == nil {
		record, err = c.Store.Find(ctx, id)
	} else {
		record, err = c.Store.FindTx(ctx, tx, id)
	}
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, errNotFound()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve prayer request")
	}
	return record, nil
}

func (c *Controller) Show(ctx router.Context) error {
	viewer, _ := c.viewer(ctx)

	record, err := c.load(ctx.Context(), nil, ctx.Param("id", ""))
	if err != nil {
		return c.fail(ctx, err)
	}

	if !CanRead(viewer, record) {
		return c.fail(ctx, errNotFound())
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"prayerRequest": Present(viewer, record),
	})
}

// UpdatePayload fields are optional, absent means unchanged
type UpdatePayload struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	IsAnonymous *bool   `json:"isAnonymous"`
	Status      *string `json:"status"`
	Reason      string  `json:"reason"`
}

func (p UpdatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Content, validation.NilOrNotEmpty, validation.Length(1, 5000)),
		validation.Field(&p.Status, validation.NilOrNotEmpty,
			validation.In(string(StatusPending), string(StatusApproved), string(StatusRejected))),
	)
}

func (p *UpdatePayload) trim() {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
	}
	if p.Content != nil {
		content := strings.TrimSpace(*p.Content)
		p.Content = &content
	}
	p.Reason = strings.TrimSpace(p.Reason)
}

func (p UpdatePayload) editsContent() bool {
	return p.Title != nil || p.Content != nil || p.IsAnonymous != nil
}

func (c *Controller) Update(ctx router.Context) error {
	viewer, claims := c.viewer(ctx)
	if claims == nil {
		return c.fail(ctx, gabriel.ErrUnauthenticated)
	}

	payload := new(UpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.fail(ctx, badInput(err))
	}
	payload.trim()
	if err := payload.Validate(); err != nil {
		return c.fail(ctx, gabriel.NewValidationError(err))
	}

	execCtx, cancel := context.WithTimeout(ctx.Context(), requestTimeout)
	defer cancel()

	var result *Request
	err := c.Tx.RunInTx(execCtx, nil, func(txCtx context.Context, tx bun.Tx) error {
		record, err := c.load(txCtx, tx, ctx.Param("id", ""))
		if err != nil {
			return err
		}

		if !CanRead(viewer, record) {
			return errNotFound()
		}

		if payload.editsContent() {
			if !CanEdit(viewer, record) {
				return errForbidden("Only the author can edit a prayer request")
			}
			if payload.Title != nil {
				record.Title = *payload.Title
			}
			if payload.Content != nil {
				record.Content = *payload.Content
			}
			if payload.IsAnonymous != nil {
				record.IsAnonymous = *payload.IsAnonymous
			}
			if _, err := c.Store.UpdateContentTx(txCtx, tx, record); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update prayer request")
			}
		}

		if payload.Status != nil {
			opts := []TransitionOption{}
			if payload.Reason != "" {
				opts = append(opts, WithReason(payload.Reason))
			}
			if _, err := c.Moderation.Transition(txCtx, tx, claims, record, Status(*payload.Status), opts...); err != nil {
				return err
			}
		}

		result, err = c.Store.FindTx(txCtx, tx, record.ID)
		return err
	})
	if err != nil {
		return c.fail(ctx, err)
	}

	return ctx.JSON(http.StatusOK, router.ViewContext{
		"prayerRequest": Present(viewer, result),
	})
}

func (c *Controller) Delete(ctx router.Context) error {
	viewer, claims := c.viewer(ctx)
	if claims == nil {
		return c.fail(ctx, gabriel.ErrUnauthenticated)
	}

	execCtx, cancel := context.WithTimeout(ctx.Context(), requestTimeout)
	defer cancel()

	err := c.Tx.RunInTx(execCtx, nil, func(txCtx context.Context, tx bun.Tx) error {
		record, err := c.load(txCtx, tx, ctx.Param("id", ""))
		if err != nil {
			return err
		}
		if !CanRead(viewer, record) {
			return errNotFound()
		}
		if !CanDelete(viewer, record) {
			return errForbidden("Only the author or an administrator can delete a prayer request")
		}
		if err := c.Store.SoftDeleteTx(txCtx, tx, record.ID); err != nil {
			if repository.IsRecordNotFound(err) {
				return errNotFound()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete prayer request")
		}
		return nil
	})
	if err != nil {
		return c.fail(ctx, err)
	}

	return ctx.NoContent(http.StatusNoContent)
}
