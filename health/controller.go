package health

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
)

type Controller struct {
	Logger  gabriel.Logger
	Checker *Checker
}

func NewController(checker *Checker) *Controller {
	return &Controller{
		Logger:  gabriel.NopLogger{},
		Checker: checker,
	}
}

func (c *Controller) WithLogger(l gabriel.Logger) *Controller {
	if l != nil {
		c.Logger = l
	}
	return c
}

// RegisterRoutes mounts the summary and per check routes, usually on
// /api/health
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get("/", c.Summary).SetName("health.summary")
	app.Get("/:check", c.Single).SetName("health.check")
}

func (c *Controller) Summary(ctx router.Context) error {
	report := c.Checker.Run(ctx.Context())

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
		c.Logger.Warn("health check failed", "checks", failed(report))
	}
	return ctx.JSON(status, report)
}

func (c *Controller) Single(ctx router.Context) error {
	name := ctx.Param("check", "")
	result, ok := c.Checker.RunOne(ctx.Context(), name)
	if !ok {
		return gabriel.RenderError(ctx, c.Logger, goerrors.New("Unknown health check: "+name, goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(gabriel.TextCodeNotFound).
			WithMetadata(map[string]any{"available": c.Checker.Names()}))
	}

	status := http.StatusOK
	if result.Status == StatusError {
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, result)
}

func failed(r Report) []string {
	var out []string
	for name, res := range r.Checks {
		if res.Status == StatusError {
			out = append(out, name)
		}
	}
	return out
}
