package bible

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
)

// Actions accepted by the proxy
const (
	ActionGetBibles         = "getBibles"
	ActionGetBooks          = "getBooks"
	ActionGetChapters       = "getChapters"
	ActionGetChapterContent = "getChapterContent"
	ActionSearch            = "search"
)

const TextCodeUnknownAction = "UNKNOWN_ACTION"

var actions = []any{
	ActionGetBibles,
	ActionGetBooks,
	ActionGetChapters,
	ActionGetChapterContent,
	ActionSearch,
}

// Request carries the action and its parameters, from the query string on
// GET and from the JSON body on POST
type Request struct {
	Action    string `json:"action" query:"action"`
	BibleID   string `json:"bibleId" query:"bibleId"`
	BookID    string `json:"bookId" query:"bookId"`
	ChapterID string `json:"chapterId" query:"chapterId"`
	Query     string `json:"query" query:"query"`
	Limit     int    `json:"limit" query:"limit"`
}

func (r Request) Validate() error {
	if err := validation.Validate(r.Action, validation.Required, validation.In(actions...)); err != nil {
		return goerrors.New("Invalid action: "+r.Action, goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeUnknownAction)
	}

	required := map[string]string{}
	switch r.Action {
	case ActionGetBooks:
		required["bibleId"] = r.BibleID
	case ActionGetChapters:
		required["bibleId"] = r.BibleID
		required["bookId"] = r.BookID
	case ActionGetChapterContent:
		required["bibleId"] = r.BibleID
		required["chapterId"] = r.ChapterID
	case ActionSearch:
		required["bibleId"] = r.BibleID
		required["query"] = r.Query
	}

	errs := validation.Errors{}
	for field, value := range required {
		if err := validation.Validate(value, validation.Required); err != nil {
			errs[field] = err
		}
	}
	if err := validation.Validate(r.Limit, validation.Min(0), validation.Max(MaxSearchLimit)); err != nil {
		errs["limit"] = err
	}
	if err := errs.Filter(); err != nil {
		return gabriel.NewValidationError(err)
	}
	return nil
}

// Do validates the request and calls the matching endpoint
func (c *Client) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch r.Action {
	case ActionGetBibles:
		return c.Bibles(ctx)
	case ActionGetBooks:
		return c.Books(ctx, r.BibleID)
	case ActionGetChapters:
		return c.Chapters(ctx, r.BibleID, r.BookID)
	case ActionGetChapterContent:
		return c.ChapterContent(ctx, r.BibleID, r.ChapterID)
	default:
		return c.Search(ctx, r.BibleID, r.Query, r.Limit)
	}
}

type Controller struct {
	Logger gabriel.Logger
	Client *Client
}

func NewController(client *Client) *Controller {
	return &Controller{
		Logger: gabriel.NopLogger{},
		Client: client,
	}
}

func (c *Controller) WithLogger(l gabriel.Logger) *Controller {
	if l != nil {
		c.Logger = l
	}
	return c
}

// RegisterRoutes mounts GET and POST on the group root, usually /api/bible
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get("/", c.Get).SetName("bible.get")
	app.Post("/", c.Post).SetName("bible.post")
}

func (c *Controller) Get(ctx router.Context) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "0"))
	return c.serve(ctx, Request{
		Action:    strings.TrimSpace(ctx.Query("action", "")),
		BibleID:   strings.TrimSpace(ctx.Query("bibleId", "")),
		BookID:    strings.TrimSpace(ctx.Query("bookId", "")),
		ChapterID: strings.TrimSpace(ctx.Query("chapterId", "")),
		Query:     strings.TrimSpace(ctx.Query("query", "")),
		Limit:     limit,
	})
}

func (c *Controller) Post(ctx router.Context) error {
	req := Request{}
	if err := ctx.Bind(&req); err != nil {
		return gabriel.RenderError(ctx, c.Logger, goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
			WithCode(goerrors.CodeBadRequest))
	}
	return c.serve(ctx, req)
}

func (c *Controller) serve(ctx router.Context, req Request) error {
	data, err := c.Client.Do(ctx.Context(), req)
	if err != nil {
		return gabriel.RenderError(ctx, c.Logger, err)
	}
	return ctx.JSON(http.StatusOK, data)
}
