package counsel

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
)

type Mode string

const (
	ModeAssistant Mode = "assistant"
	ModeChat      Mode = "chat"
)

const CounselorPrompt = `You are Gabriel, a gentle and wise biblical counselor. ` +
	`Answer with compassion, ground your guidance in Scripture and cite the ` +
	`book, chapter and verse you draw from. Encourage prayer and, when a ` +
	`situation involves danger or crisis, urge the person to contact local ` +
	`emergency services or a trusted pastor.`

const SermonPrompt = `You are an experienced pastor who writes clear, ` +
	`biblically faithful sermons with an introduction, main points supported ` +
	`by Scripture and a closing application.`

// Selection controls which backend answers a chat
type Selection struct {
	ForceAssistant bool
	ForceFallback  bool
}

// Completer is the part of Client the service needs
type Completer interface {
	Stream(ctx context.Context, messages []Message, fn func(delta string) error) error
	Complete(ctx context.Context, messages []Message) (string, error)
	RunAssistant(ctx context.Context, messages []Message) (string, error)
	HasAssistant() bool
}

var _ Completer = (*Client)(nil)

type Reply struct {
	Content string `json:"content"`
	Mode    Mode   `json:"mode"`
}

type Service struct {
	client    Completer
	selection Selection
	logger    gabriel.Logger
}

func NewService(client Completer, selection Selection) *Service {
	return &Service{
		client:    client,
		selection: selection,
		logger:    gabriel.NopLogger{},
	}
}

func (s *Service) WithLogger(l gabriel.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Mode picks the backend. The fallback flag wins over the assistant flag.
func (s *Service) Mode() Mode {
	switch {
	case s.selection.ForceFallback:
		return ModeChat
	case s.selection.ForceAssistant:
		return ModeAssistant
	case s.client.HasAssistant():
		return ModeAssistant
	default:
		return ModeChat
	}
}

// Chat answers the conversation. Outside of forced assistant mode an
// assistant failure falls back to chat completions.
func (s *Service) Chat(ctx context.Context, messages []Message) (Reply, error) {
	mode := s.Mode()

	if mode == ModeAssistant {
		text, err := s.client.RunAssistant(ctx, messages)
		if err == nil {
			return Reply{Content: text, Mode: ModeAssistant}, nil
		}
		if s.selection.ForceAssistant || ctx.Err() != nil {
			return Reply{}, s.upstream(err)
		}
		s.logger.Warn("assistant failed, falling back to chat completions", "error", err)
	}

	text, err := s.collect(ctx, withSystem(CounselorPrompt, messages))
	if err != nil {
		return Reply{}, s.upstream(err)
	}
	return Reply{Content: text, Mode: ModeChat}, nil
}

type SermonRequest struct {
	Topic     string `json:"topic"`
	Scripture string `json:"scripture"`
	Audience  string `json:"audience"`
	Length    string `json:"length"`
}

var sermonLengths = map[string]string{
	"short":  "about 5 minutes (600 words)",
	"medium": "about 15 minutes (1500 words)",
	"long":   "about 30 minutes (3000 words)",
}

func (r SermonRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Topic, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Scripture, validation.Length(0, 200)),
		validation.Field(&r.Audience, validation.Length(0, 200)),
		validation.Field(&r.Length, validation.In("short", "medium", "long")),
	)
}

// Prompt renders the user message for the sermon request
func (r SermonRequest) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a sermon on the topic %q.", strings.TrimSpace(r.Topic))
	if scripture := strings.TrimSpace(r.Scripture); scripture != "" {
		fmt.Fprintf(&b, " Base it on %s.", scripture)
	}
	if audience := strings.TrimSpace(r.Audience); audience != "" {
		fmt.Fprintf(&b, " The audience is %s.", audience)
	}
	length, ok := sermonLengths[strings.ToLower(strings.TrimSpace(r.Length))]
	if !ok {
		length = sermonLengths["medium"]
	}
	fmt.Fprintf(&b, " It should last %s.", length)
	return b.String()
}

func (s *Service) Sermon(ctx context.Context, req SermonRequest) (string, error) {
	text, err := s.client.Complete(ctx, []Message{
		{Role: RoleSystem, Content: SermonPrompt},
		{Role: RoleUser, Content: req.Prompt()},
	})
	if err != nil {
		return "", s.upstream(err)
	}
	return text, nil
}

func (s *Service) collect(ctx context.Context, messages []Message) (string, error) {
	var b strings.Builder
	err := s.client.Stream(ctx, messages, func(delta string) error {
		b.WriteString(delta)
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), " \n"), nil
}

func (s *Service) upstream(err error) error {
	if IsCanceled(err) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "LLM request timed out or was cancelled").
			WithCode(http.StatusGatewayTimeout).
			WithTextCode(TextCodeUpstreamTimeout)
	}
	return err
}

func withSystem(prompt string, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
