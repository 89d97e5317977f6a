// Package bible proxies the API.Bible content service so the key never
// reaches the browser.
package bible

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/metrics"
)

const (
	DefaultBaseURL = "https://api.scripture.api.bible/v1"
	DefaultTimeout = 15 * time.Second

	headerAPIKey = "api-key"
	serviceName  = "bible"

	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	observer   metrics.UpstreamObserver
	logger     gabriel.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithObserver(o metrics.UpstreamObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

func WithLogger(l gabriel.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     gabriel.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) Bibles(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, ActionGetBibles, "/bibles", nil)
}

func (c *Client) Books(ctx context.Context, bibleID string) (json.RawMessage, error) {
	return c.get(ctx, ActionGetBooks, "/bibles/"+url.PathEscape(bibleID)+"/books", nil)
}

func (c *Client) Chapters(ctx context.Context, bibleID, bookID string) (json.RawMessage, error) {
	path := "/bibles/" + url.PathEscape(bibleID) + "/books/" + url.PathEscape(bookID) + "/chapters"
	return c.get(ctx, ActionGetChapters, path, nil)
}

// ChapterContent returns the chapter as HTML with verse numbers and without
// notes
func (c *Client) ChapterContent(ctx context.Context, bibleID, chapterID string) (json.RawMessage, error) {
	path := "/bibles/" + url.PathEscape(bibleID) + "/chapters/" + url.PathEscape(chapterID)
	q := url.Values{}
	q.Set("content-type", "html")
	q.Set("include-notes", "false")
	q.Set("include-titles", "true")
	q.Set("include-chapter-numbers", "false")
	q.Set("include-verse-numbers", "true")
	q.Set("include-verse-spans", "false")
	return c.get(ctx, ActionGetChapterContent, path, q)
}

func (c *Client) Search(ctx context.Context, bibleID, query string, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	return c.get(ctx, ActionSearch, "/bibles/"+url.PathEscape(bibleID)+"/search", q)
}

// Ping lists the bibles and discards the body
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Bibles(ctx)
	return err
}

type upstreamError struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (c *Client) get(ctx context.Context, operation, path string, query url.Values) (out json.RawMessage, err error) {
	if !c.Configured() {
		return nil, gabriel.ErrServiceUnavailable
	}

	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveUpstream(serviceName, operation, started, err)
		}
	}()

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create bible request")
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("bible request failed", "operation", operation, "error", err)
		return nil, gabriel.NewUpstreamError(serviceName, "Bible API request failed: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, gabriel.NewUpstreamError(serviceName, "failed to read Bible API response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := upstreamMessage(resp.StatusCode, body)
		c.logger.Warn("bible api error", "operation", operation, "status", resp.StatusCode, "message", msg)
		return nil, gabriel.NewUpstreamError(serviceName, msg)
	}

	if !json.Valid(body) {
		return nil, gabriel.NewUpstreamError(serviceName, "Bible API returned an invalid response")
	}

	return json.RawMessage(body), nil
}

func upstreamMessage(status int, body []byte) string {
	var ue upstreamError
	if err := json.Unmarshal(body, &ue); err == nil {
		if ue.Message != "" {
			return ue.Message
		}
		if ue.Error != "" {
			return ue.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 300 {
		return text
	}
	return "Bible API returned status " + strconv.Itoa(status)
}
