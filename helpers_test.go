package gabriel_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testPassword = "correct horse battery"

type testConfig struct {
	signingKey string
}

func (c testConfig) GetSigningKey() string {
	if c.signingKey != "" {
		return c.signingKey
	}
	return "test-signing-key"
}
func (testConfig) GetSigningMethod() string        { return "HS256" }
func (testConfig) GetContextKey() string           { return gabriel.DefaultContextKey }
func (testConfig) GetTokenExpiration() int         { return 1 }
func (testConfig) GetTokenLookup() string          { return gabriel.DefaultTokenLookup }
func (testConfig) GetAuthScheme() string           { return "Bearer" }
func (testConfig) GetIssuer() string               { return "gabriel-test" }
func (testConfig) GetAudience() []string           { return []string{"gabriel-test"} }
func (testConfig) GetRejectedRouteKey() string     { return "rejected" }
func (testConfig) GetRejectedRouteDefault() string { return "/login" }
func (testConfig) GetSecureCookies() bool          { return false }

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.Migrate(ctx, db))
	return db
}

// memRevoker is a minimal in-process denylist
type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMemRevoker() *memRevoker {
	return &memRevoker{revoked: map[string]time.Time{}}
}

func (m *memRevoker) Revoke(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[id] = until
	return nil
}

func (m *memRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[id]
	return ok, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []gabriel.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, e gabriel.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []gabriel.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]gabriel.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type env struct {
	db       *bun.DB
	repo     gabriel.RepositoryManager
	auther   *gabriel.Auther
	routes   *gabriel.RouteAuthenticator
	revoker  *memRevoker
	activity *eventRecorder
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := setupDB(t)
	repo := gabriel.NewRepositoryManager(db)
	revoker := newMemRevoker()
	activity := &eventRecorder{}

	auther := gabriel.NewAuthenticator(gabriel.NewCredentialValidator(repo.Users()).WithLogger(gabriel.NopLogger{}), testConfig{}).
		WithLogger(gabriel.NopLogger{}).
		WithRevoker(revoker).
		WithActivitySink(activity)

	return env{
		db:       db,
		repo:     repo,
		auther:   auther,
		routes:   gabriel.NewHTTPAuthenticator(auther, testConfig{}).WithLogger(gabriel.NopLogger{}),
		revoker:  revoker,
		activity: activity,
	}
}

// createUser stores an account, an empty password leaves the hash unset
func (e env) createUser(t *testing.T, email, name, role, password string) *gabriel.User {
	t.Helper()
	u := &gabriel.User{Email: email, Name: name, Role: role}
	if password != "" {
		hash, err := gabriel.HashPassword(password)
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	user, err := e.repo.Users().Register(context.Background(), u)
	require.NoError(t, err)
	return user
}

func mockContext() *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background()).Maybe()
	ctx.On("SetContext", mock.Anything).Return().Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return().Maybe()
	ctx.On("Path").Return("/api/auth").Maybe()
	return ctx
}

// captureJSON records the payload of a JSON call with the given status
func captureJSON(ctx *router.MockContext, status int) *any {
	out := new(any)
	ctx.On("JSON", status, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		*out = args.Get(1)
	})
	return out
}

// captureCookies records every cookie the handler writes
func captureCookies(ctx *router.MockContext) map[string]*router.Cookie {
	jar := map[string]*router.Cookie{}
	ctx.On("Cookie", mock.Anything).Return().Run(func(args mock.Arguments) {
		if c, ok := args.Get(0).(*router.Cookie); ok {
			jar[c.Name] = c
		}
	}).Maybe()
	return jar
}

// bindJSON answers Bind by decoding body into the handler payload
func bindJSON(t *testing.T, ctx *router.MockContext, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(raw, args.Get(0)))
	})
}
