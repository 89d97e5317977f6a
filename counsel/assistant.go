package counsel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
)

const TextCodeUpstreamTimeout = "UPSTREAM_TIMEOUT"

// Run statuses reported by the assistants API
const (
	RunQueued         = "queued"
	RunInProgress     = "in_progress"
	RunCompleted      = "completed"
	RunRequiresAction = "requires_action"
	RunFailed         = "failed"
	RunCancelled      = "cancelled"
	RunExpired        = "expired"
	RunIncomplete     = "incomplete"
)

var assistantHeader = http.Header{"OpenAI-Beta": []string{"assistants=v2"}}

func errRunTimeout(attempts int, interval time.Duration) *goerrors.Error {
	return goerrors.New("Assistant run timed out", goerrors.CategoryOperation).
		WithCode(http.StatusGatewayTimeout).
		WithTextCode(TextCodeUpstreamTimeout).
		WithMetadata(map[string]any{
			"attempts": attempts,
			"interval": interval.String(),
		})
}

type thread struct {
	ID string `json:"id"`
}

type run struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error,omitempty"`
}

type threadMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text,omitempty"`
	} `json:"content"`
}

type messageList struct {
	Data []threadMessage `json:"data"`
}

type threadRequest struct {
	Messages []Message `json:"messages"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

// RunAssistant sends the conversation to the configured assistant and waits
// for its answer. System messages are dropped, the assistant carries its own
// instructions. Running out of the client timeout while ctx is still live
// reports an upstream timeout, not a cancellation.
func (c *Client) RunAssistant(ctx context.Context, messages []Message) (text string, err error) {
	started := time.Now()
	defer c.observe("assistant", started, &err)

	if !c.HasAssistant() {
		return "", gabriel.ErrServiceUnavailable
	}

	parent := ctx
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	defer func() {
		if err != nil && parent.Err() == nil && IsCanceled(err) {
			err = errRunTimeout(c.cfg.PollAttempts, c.cfg.PollInterval)
		}
	}()

	th := thread{}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", threadRequest{Messages: threadMessages(messages)}, &th); err != nil {
		return "", err
	}

	current := run{}
	if err := c.doJSON(ctx, http.MethodPost, "/threads/"+url.PathEscape(th.ID)+"/runs", runRequest{AssistantID: c.cfg.AssistantID}, &current); err != nil {
		return "", err
	}

	if err := c.waitForRun(ctx, th.ID, &current); err != nil {
		return "", err
	}

	list := messageList{}
	path := "/threads/" + url.PathEscape(th.ID) + "/messages?order=desc&limit=10"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return "", err
	}

	for _, msg := range list.Data {
		if msg.Role != RoleAssistant {
			continue
		}
		var b strings.Builder
		for _, part := range msg.Content {
			if part.Type == "text" && part.Text != nil {
				b.WriteString(part.Text.Value)
			}
		}
		if b.Len() > 0 {
			return Clean(b.String()), nil
		}
	}

	return "", gabriel.NewUpstreamError(serviceName, "assistant returned no message")
}

func (c *Client) waitForRun(ctx context.Context, threadID string, current *run) error {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/"

	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		switch current.Status {
		case RunCompleted:
			return nil
		case RunFailed, RunCancelled, RunExpired, RunIncomplete, RunRequiresAction:
			msg := "assistant run " + current.Status
			if current.LastError != nil && current.LastError.Message != "" {
				msg += ": " + current.LastError.Message
			}
			return gabriel.NewUpstreamError(serviceName, msg)
		}

		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}

		if err := c.doJSON(ctx, http.MethodGet, path+url.PathEscape(current.ID), nil, current); err != nil {
			return err
		}
	}

	if current.Status == RunCompleted {
		return nil
	}
	c.logger.Warn("assistant run did not finish", "thread", threadID, "run", current.ID, "status", current.Status)
	return errRunTimeout(c.cfg.PollAttempts, c.cfg.PollInterval)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, assistantHeader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gabriel.NewUpstreamError(serviceName, "failed to parse assistant response")
	}
	return nil
}

func threadMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
