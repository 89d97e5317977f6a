// Package revocation keeps a denylist of token ids that were logged out
// before they expired.
package revocation

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/littlegabriel/gabriel"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces revoked token ids in redis
const KeyPrefix = "gabriel:revoked:"

// Store is satisfied by every implementation in this package
type Store interface {
	gabriel.Revoker
}

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
	_ Store = Noop{}
)

// Client is the part of redis.Cmdable the store needs
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis stores each revoked id under its own key with a TTL matching the
// token expiry, so the set never outgrows the live tokens
type Redis struct {
	client Client
	prefix string
	now    func() time.Time
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func WithClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRedis(client Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: KeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Dial parses a redis:// url and verifies the connection
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "invalid REDIS_URL").WithTextCode(gabriel.TextCodeConfigInvalid)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to connect to redis")
	}
	return client, nil
}

func (r *Redis) key(tokenID string) string {
	return r.prefix + tokenID
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		// already expired, the signature check rejects it anyway
		return nil
	}
	if err := r.client.Set(ctx, r.key(tokenID), "1", ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to revoke token")
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to check token revocation")
	}
	return n > 0, nil
}

// Ping is used by the health checks
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Memory is a single process denylist
type Memory struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		revoked: map[string]time.Time{},
		now:     time.Now,
	}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purge()
	if until.After(m.now()) {
		m.revoked[tokenID] = until
	}
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !until.After(m.now()) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Len counts live entries
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge()
	return len(m.revoked)
}

func (m *Memory) purge() {
	now := m.now()
	for id, until := range m.revoked {
		if !until.After(now) {
			delete(m.revoked, id)
		}
	}
}

// Noop never revokes anything
type Noop struct{}

func (Noop) Revoke(context.Context, string, time.Time) error { return nil }

func (Noop) IsRevoked(context.Context, string) (bool, error) { return false, nil }
