package revocation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/littlegabriel/gabriel/revocation"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys   map[string]time.Duration
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, _ any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestRedis_RevokeSetsTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := newFakeRedis()
	store := revocation.NewRedis(fake, revocation.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "jti-1", now.Add(2*time.Hour)))
	assert.Equal(t, 2*time.Hour, fake.keys["gabriel:revoked:jti-1"])

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Ping(ctx))
}

func TestRedis_ExpiredTokenIsSkipped(t *testing.T) {
	now := time.Now()
	fake := newFakeRedis()
	store := revocation.NewRedis(fake, revocation.WithClock(func() time.Time { return now }))

	require.NoError(t, store.Revoke(context.Background(), "jti-old", now.Add(-time.Minute)))
	assert.Empty(t, fake.keys)
}

func TestRedis_CustomPrefixAndErrors(t *testing.T) {
	fake := newFakeRedis()
	store := revocation.NewRedis(fake, revocation.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "abc", time.Now().Add(time.Hour)))
	_, ok := fake.keys["test:abc"]
	assert.True(t, ok)

	fake.setErr = errors.New("connection refused")
	assert.Error(t, store.Revoke(ctx, "def", time.Now().Add(time.Hour)))
}

func TestMemory(t *testing.T) {
	store := revocation.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "dead", time.Now().Add(-time.Hour)))

	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "dead")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Equal(t, 1, store.Len())
}

func TestNoop(t *testing.T) {
	var store revocation.Store = revocation.Noop{}
	require.NoError(t, store.Revoke(context.Background(), "x", time.Now().Add(time.Hour)))
	revoked, err := store.IsRevoked(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, revoked)
}
