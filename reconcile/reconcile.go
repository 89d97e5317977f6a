// Package reconcile merges the independent authentication signals a browser
// session can carry into one effective decision.
//
// The framework session is authoritative once it has loaded. Direct login
// signals are a fallback used only after the framework reported no user.
// While the framework is still loading no redirect is ever produced.
package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// State of a browser session as seen by the reconciler
type State string

const (
	StateUnknown                  State = "unknown"
	StateFrameworkLoading         State = "framework_loading"
	StateFrameworkAuthenticated   State = "framework_authenticated"
	StateFrameworkUnauthenticated State = "framework_unauthenticated"
	StateDirectAuthenticated      State = "direct_authenticated"
	StateRedirecting              State = "redirecting"
)

// FrameworkStatus mirrors the primary session loader
type FrameworkStatus string

const (
	FrameworkLoading         FrameworkStatus = "loading"
	FrameworkAuthenticated   FrameworkStatus = "authenticated"
	FrameworkUnauthenticated FrameworkStatus = "unauthenticated"
)

// Source names which signal produced the effective user
type Source string

const (
	SourceNone      Source = ""
	SourceFramework Source = "framework"
	SourceDirect    Source = "direct"
	SourceStorage   Source = "storage"
)

// Storage keys written back after every decision
const (
	KeySiteAuth  = "gabriel-site-auth"
	KeyEmail     = "gabriel-auth-email"
	KeyUser      = "gabriel-auth-user"
	KeyTimestamp = "gabriel-auth-timestamp"
	KeyRole      = "gabriel-user-role"
)

// DefaultLoginPath is where unauthenticated sessions are sent
const DefaultLoginPath = "/login"

// User is the identity the UI works with
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Signals are the inputs of one reconciliation pass
type Signals struct {
	Framework     FrameworkStatus
	FrameworkUser *User
	DirectUser    *User
	SiteAuth      bool
}

// Decision is the single effective auth state
type Decision struct {
	State         State  `json:"state"`
	Authenticated bool   `json:"authenticated"`
	User          *User  `json:"user,omitempty"`
	Source        Source `json:"source,omitempty"`
	Redirect      string `json:"redirect,omitempty"`
	// Provisional is set when the decision comes from storage while the
	// framework is still loading
	Provisional bool `json:"provisional,omitempty"`
}

// Logger is the subset used by the reconciler
type Logger interface {
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}

// Option configures a Reconciler
type Option func(*Reconciler)

func WithLoginPath(path string) Option {
	return func(r *Reconciler) {
		if path != "" {
			r.loginPath = path
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

var transitions = map[State]map[State]struct{}{
	StateUnknown: {
		StateFrameworkLoading:         {},
		StateFrameworkAuthenticated:   {},
		StateFrameworkUnauthenticated: {},
	},
	StateFrameworkLoading: {
		StateFrameworkLoading:         {},
		StateFrameworkAuthenticated:   {},
		StateFrameworkUnauthenticated: {},
	},
	StateFrameworkAuthenticated: {
		StateFrameworkAuthenticated:   {},
		StateFrameworkLoading:         {},
		StateFrameworkUnauthenticated: {},
	},
	StateFrameworkUnauthenticated: {
		StateDirectAuthenticated: {},
		StateRedirecting:         {},
	},
	StateDirectAuthenticated: {
		StateDirectAuthenticated:      {},
		StateFrameworkLoading:         {},
		StateFrameworkAuthenticated:   {},
		StateFrameworkUnauthenticated: {},
	},
	StateRedirecting: {
		StateUnknown: {},
	},
}

// InvalidTransitionError reports a transition outside the table
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("reconcile: invalid transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether the table allows from -> to
func CanTransition(from, to State) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Reconciler holds the per browser session state
type Reconciler struct {
	mu        sync.Mutex
	state     State
	storage   Storage
	loginPath string
	now       func() time.Time
	logger    Logger
}

func New(storage Storage, opts ...Option) *Reconciler {
	if storage == nil {
		storage = MapStorage{}
	}
	r := &Reconciler{
		state:     StateUnknown,
		storage:   storage,
		loginPath: DefaultLoginPath,
		now:       time.Now,
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset models landing on the login page after a redirect
func (r *Reconciler) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.move(StateUnknown)
}

// Reconcile runs one pass over the signals. A session that was redirected
// must be Reset before it can be reconciled again.
func (r *Reconciler) Reconcile(s Signals) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch s.Framework {
	case FrameworkLoading, "":
		if err := r.move(StateFrameworkLoading); err != nil {
			return Decision{}, err
		}
		return r.provisional(s), nil

	case FrameworkAuthenticated:
		if s.FrameworkUser == nil {
			return r.unauthenticated(s)
		}
		if err := r.move(StateFrameworkAuthenticated); err != nil {
			return Decision{}, err
		}
		r.persist(s.FrameworkUser)
		return Decision{
			State:         r.state,
			Authenticated: true,
			User:          s.FrameworkUser,
			Source:        SourceFramework,
		}, nil

	case FrameworkUnauthenticated:
		return r.unauthenticated(s)
	}

	return Decision{}, fmt.Errorf("reconcile: unknown framework status %q", s.Framework)
}

func (r *Reconciler) unauthenticated(s Signals) (Decision, error) {
	if err := r.move(StateFrameworkUnauthenticated); err != nil {
		return Decision{}, err
	}

	if s.DirectUser != nil {
		if err := r.move(StateDirectAuthenticated); err != nil {
			return Decision{}, err
		}
		r.persist(s.DirectUser)
		return Decision{
			State:         r.state,
			Authenticated: true,
			User:          s.DirectUser,
			Source:        SourceDirect,
		}, nil
	}

	if err := r.move(StateRedirecting); err != nil {
		return Decision{}, err
	}
	r.clear()
	return Decision{
		State:    r.state,
		Redirect: r.loginPath,
	}, nil
}

// provisional answers from the cache while the framework loads, it never
// redirects. Without a cached user a direct user vouched for by the site
// flag stands in.
func (r *Reconciler) provisional(s Signals) Decision {
	d := Decision{State: r.state}

	if user, ok := r.cachedUser(); ok {
		d.Authenticated = true
		d.User = user
		d.Source = SourceStorage
		d.Provisional = true
		return d
	}

	if s.SiteAuth && s.DirectUser != nil {
		d.Authenticated = true
		d.User = s.DirectUser
		d.Source = SourceDirect
		d.Provisional = true
	}
	return d
}

func (r *Reconciler) cachedUser() (*User, bool) {
	raw, ok := r.storage.Get(KeyUser)
	if !ok || raw == "" {
		return nil, false
	}

	user := &User{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		r.logger.Debug("reconcile: discarding unreadable cached user", "error", err)
		return nil, false
	}
	return user, true
}

func (r *Reconciler) move(to State) error {
	if !CanTransition(r.state, to) {
		return &InvalidTransitionError{From: r.state, To: to}
	}
	r.logger.Debug("reconcile: transition", "from", r.state, "to", to)
	r.state = to
	return nil
}

func (r *Reconciler) persist(u *User) {
	raw, err := json.Marshal(u)
	if err == nil {
		r.storage.Set(KeyUser, string(raw))
	}
	r.storage.Set(KeyEmail, u.Email)
	r.storage.Set(KeyRole, u.Role)
	r.storage.Set(KeySiteAuth, "true")
	r.storage.Set(KeyTimestamp, strconv.FormatInt(r.now().UnixMilli(), 10))
}

func (r *Reconciler) clear() {
	for _, key := range []string{KeySiteAuth, KeyEmail, KeyUser, KeyTimestamp, KeyRole} {
		r.storage.Remove(key)
	}
}
