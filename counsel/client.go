// Package counsel talks to the hosted LLM: chat completions, assistant runs
// and sermon generation.
package counsel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/metrics"
)

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultMaxRetries   = 2
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 30

	serviceName = "openai"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	AssistantID  string
	MaxRetries   int
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = DefaultPollAttempts
	}
	return c
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	observer   metrics.UpstreamObserver
	logger     gabriel.Logger
	backoff    time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
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

// WithBackoff sets the delay before the first retry, it doubles on each
// following attempt
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     gabriel.NopLogger{},
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) HasAssistant() bool {
	return strings.TrimSpace(c.cfg.AssistantID) != ""
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *Message `json:"message,omitempty"`
		Delta   *struct {
			Content string `json:"content"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

// Complete runs a non streaming chat completion and returns the cleaned text
func (c *Client) Complete(ctx context.Context, messages []Message) (text string, err error) {
	started := time.Now()
	defer c.observe("chat", started, &err)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/chat/completions", chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: 0.7,
	}, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", gabriel.NewUpstreamError(serviceName, "failed to parse completion response")
	}
	if out.Error != nil {
		return "", gabriel.NewUpstreamError(serviceName, out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil {
		return "", gabriel.NewUpstreamError(serviceName, "no completion returned")
	}

	return Clean(out.Choices[0].Message.Content), nil
}

// Stream runs a streaming chat completion. Every cleaned delta is passed to
// fn; returning an error from fn stops the stream.
func (c *Client) Stream(ctx context.Context, messages []Message, fn func(delta string) error) (err error) {
	started := time.Now()
	defer c.observe("chat_stream", started, &err)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/chat/completions", chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      true,
		Temperature: 0.7,
	}, http.Header{"Accept": []string{"text/event-stream"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	cleaner := NewCleaner()
	emit := func(s string) error {
		if s == "" {
			return nil
		}
		return fn(s)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return gabriel.NewUpstreamError(serviceName, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		if err := emit(cleaner.Chunk(chunk.Choices[0].Delta.Content)); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return gabriel.NewUpstreamError(serviceName, "stream interrupted: "+err.Error())
	}

	return emit(cleaner.Flush())
}

// Ping lists the models, used by the health checks
func (c *Client) Ping(ctx context.Context) (err error) {
	started := time.Now()
	defer c.observe("models", started, &err)

	resp, err := c.do(ctx, http.MethodGet, "/models", nil, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) observe(operation string, started time.Time, err *error) {
	if c.observer != nil {
		c.observer.ObserveUpstream(serviceName, operation, started, *err)
	}
}

// do sends the request, retrying network failures, 429 and 5xx answers up
// to MaxRetries times. The caller owns the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	if !c.Configured() {
		return nil, gabriel.ErrServiceUnavailable
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode LLM request")
		}
	}

	var lastErr error
	delay := c.backoff

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create LLM request")
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = gabriel.NewUpstreamError(serviceName, "LLM request failed: "+err.Error())
			c.logger.Warn("llm request failed", "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		lastErr = gabriel.NewUpstreamError(serviceName, upstreamMessage(resp.StatusCode, raw))

		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < http.StatusInternalServerError {
			return nil, lastErr
		}
		c.logger.Warn("llm request retryable failure", "path", path, "status", resp.StatusCode, "attempt", attempt+1)
	}

	return nil, lastErr
}

func upstreamMessage(status int, body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return "LLM API returned status " + strconv.Itoa(status)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsCanceled reports a client disconnect or an expired deadline
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
