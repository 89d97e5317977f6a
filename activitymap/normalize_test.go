package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := gabriel.ActivityEvent{
		EventType:  gabriel.ActivityEventUserRoleChanged,
		Actor:      gabriel.ActorRef{ID: "admin-42", Type: "user"},
		UserID:     "user-100",
		Metadata:   map[string]any{"from": "user", "to": "admin"},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(gabriel.ActivityEventUserRoleChanged), out.Verb)
	assert.Equal(t, activitymap.ObjectTypeUser, out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "user", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))
	assert.Equal(t, "admin", out.Metadata["to"])
	assert.Equal(t, "user", out.Metadata[activitymap.MetadataKeyActorType])
}

func TestNormalizeModeration(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(gabriel.ActivityEvent{
		EventType: gabriel.ActivityEventPrayerModerated,
		Actor:     gabriel.ActorRef{ID: "admin-1", Type: "user"},
		UserID:    "owner-1",
		Metadata: map[string]any{
			activitymap.MetadataKeyPrayerRequest: "req-9",
			activitymap.MetadataKeyFromStatus:    "pending",
			activitymap.MetadataKeyToStatus:      "approved",
		},
	})

	assert.Equal(t, "prayer", out.Channel)
	assert.Equal(t, activitymap.ObjectTypePrayerRequest, out.ObjectType)
	assert.Equal(t, "req-9", out.ObjectID)
	assert.Equal(t, "approved", out.Metadata[activitymap.MetadataKeyToStatus])
	assert.False(t, out.OccurredAt.IsZero())
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(gabriel.ActivityEvent{EventType: gabriel.ActivityEventLoginFailure})
	assert.Equal(t, "system", out.ActorID)
	assert.Equal(t, "auth", out.Channel)
	assert.Nil(t, out.Metadata)

	out = activitymap.Normalize(gabriel.ActivityEvent{EventType: gabriel.ActivityEventLogout, UserID: "u-1"})
	assert.Equal(t, "u-1", out.ActorID)

	out = activitymap.Normalize(gabriel.ActivityEvent{EventType: gabriel.ActivityEventLoginFailure}, activitymap.WithActorFallback("anonymous"))
	assert.Equal(t, "anonymous", out.ActorID)
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	event := gabriel.ActivityEvent{
		EventType: gabriel.ActivityEventUserRegistered,
		UserID:    "user-7",
		Metadata:  map[string]any{"email": "x@example.com"},
	}

	out := activitymap.Normalize(event,
		activitymap.WithDefaultChannel("audit"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithObjectIDResolver(func(e gabriel.ActivityEvent) string {
			return e.Metadata["email"].(string)
		}),
	)

	assert.Equal(t, "audit", out.Channel)
	assert.Equal(t, "account", out.ObjectType)
	assert.Equal(t, "x@example.com", out.ObjectID)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	meta := map[string]any{"jti": "abc"}
	activitymap.Normalize(gabriel.ActivityEvent{
		EventType: gabriel.ActivityEventLogout,
		Actor:     gabriel.ActorRef{ID: "u", Type: "user"},
		Metadata:  meta,
	})
	assert.Equal(t, map[string]any{"jti": "abc"}, meta)
}

type lines struct {
	gabriel.NopLogger
	got [][]any
}

func (l *lines) Info(_ string, args ...any) { l.got = append(l.got, args) }

func TestSinks(t *testing.T) {
	var records []activitymap.Normalized
	sink := activitymap.NewSink(func(_ context.Context, r activitymap.Normalized) error {
		records = append(records, r)
		return nil
	})

	require.NoError(t, sink.Record(context.Background(), gabriel.ActivityEvent{EventType: gabriel.ActivityEventLogout, UserID: "u-1"}))
	require.Len(t, records, 1)
	assert.Equal(t, "auth", records[0].Channel)

	var nilSink *activitymap.Sink
	assert.NoError(t, nilSink.Record(context.Background(), gabriel.ActivityEvent{}))

	logger := &lines{}
	require.NoError(t, activitymap.LogSink(logger).Record(context.Background(), gabriel.ActivityEvent{
		EventType: gabriel.ActivityEventPrayerModerated,
		Metadata: map[string]any{
			activitymap.MetadataKeyPrayerRequest: "req-1",
			activitymap.MetadataKeyToStatus:      "rejected",
		},
	}))
	require.Len(t, logger.got, 1)
	assert.Contains(t, logger.got[0], "req-1")
	assert.Contains(t, logger.got[0], "rejected")
}
