package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/littlegabriel/gabriel"
)

const (
	// MetadataKeyActorType stores the actor type derived from gabriel.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source status of a moderation transition.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target status of a moderation transition.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyPrayerRequest is the request id carried by moderation events.
	MetadataKeyPrayerRequest = "prayer_request_id"
)

const (
	ObjectTypeUser          = "user"
	ObjectTypePrayerRequest = "prayer_request"

	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(gabriel.ActivityEvent) string
}

// Normalize converts a gabriel.ActivityEvent into the generic shape. The
// channel is the first segment of the event type ("auth", "user", "prayer")
// unless WithDefaultChannel overrides it.
func Normalize(event gabriel.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{actorFallback: defaultActorID}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType, objectID := resolveObject(event, options)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    firstNonEmpty(options.channel, channelOf(event.EventType)),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel pins the channel instead of deriving it from the verb.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType pins the object type.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(gabriel.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func channelOf(eventType gabriel.ActivityEventType) string {
	verb := string(eventType)
	if i := strings.IndexByte(verb, '.'); i > 0 {
		return verb[:i]
	}
	return verb
}

// resolveObject points moderation events at the prayer request and
// everything else at the affected user
func resolveObject(event gabriel.ActivityEvent, options normalizeOptions) (string, string) {
	objectType := ObjectTypeUser
	objectID := strings.TrimSpace(event.UserID)

	if event.EventType == gabriel.ActivityEventPrayerModerated {
		objectType = ObjectTypePrayerRequest
		if id, ok := event.Metadata[MetadataKeyPrayerRequest].(string); ok {
			objectID = strings.TrimSpace(id)
		}
	}

	if options.objectType != "" {
		objectType = options.objectType
	}
	if options.objectIDResolver != nil {
		objectID = strings.TrimSpace(options.objectIDResolver(event))
	}
	return objectType, objectID
}

func normalizeMetadata(event gabriel.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// Emitter receives normalized records
type Emitter func(ctx context.Context, record Normalized) error

// Sink adapts an Emitter to gabriel.ActivitySink
type Sink struct {
	emit Emitter
	opts []Option
}

var _ gabriel.ActivitySink = (*Sink)(nil)

func NewSink(emit Emitter, opts ...Option) *Sink {
	return &Sink{emit: emit, opts: opts}
}

func (s *Sink) Record(ctx context.Context, event gabriel.ActivityEvent) error {
	if s == nil || s.emit == nil {
		return nil
	}
	return s.emit(ctx, Normalize(event, s.opts...))
}

// LogSink writes every normalized record as one structured log line
func LogSink(logger gabriel.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = gabriel.NopLogger{}
	}
	return NewSink(func(_ context.Context, r Normalized) error {
		args := []any{
			"verb", r.Verb,
			"channel", r.Channel,
			"actor", r.ActorID,
			"object_type", r.ObjectType,
			"object_id", r.ObjectID,
		}
		if v, ok := r.Metadata[MetadataKeyToStatus]; ok {
			args = append(args, "to_status", v)
		}
		logger.Info("activity", args...)
		return nil
	}, opts...)
}
