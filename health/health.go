// Package health runs the service diagnostics: database, hosted LLM, Bible
// API, environment and redis.
package health

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

const DefaultTimeout = 5 * time.Second

// Check is one diagnostic. Returning ErrSkipped marks the check as not
// configured, it does not fail the report.
type Check interface {
	Name() string
	Run(ctx context.Context) (map[string]any, error)
}

type checkFunc struct {
	name string
	fn   func(ctx context.Context) (map[string]any, error)
}

func (c checkFunc) Name() string { return c.name }

func (c checkFunc) Run(ctx context.Context) (map[string]any, error) { return c.fn(ctx) }

// NewCheck wraps a function as a Check
func NewCheck(name string, fn func(ctx context.Context) (map[string]any, error)) Check {
	return checkFunc{name: name, fn: fn}
}

type Result struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	LatencyMS int64          `json:"latencyMs"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type Report struct {
	Status    Status            `json:"status"`
	Checks    map[string]Result `json:"checks"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Healthy is true when no check failed
func (r Report) Healthy() bool {
	return r.Status != StatusError
}

type Checker struct {
	checks  []Check
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Checker)

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Register adds checks, a later check with the same name replaces the
// earlier one
func (c *Checker) Register(checks ...Check) *Checker {
	for _, check := range checks {
		if check == nil {
			continue
		}
		replaced := false
		for i, existing := range c.checks {
			if existing.Name() == check.Name() {
				c.checks[i] = check
				replaced = true
				break
			}
		}
		if !replaced {
			c.checks = append(c.checks, check)
		}
	}
	return c
}

// Names lists the registered checks in order
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for _, check := range c.checks {
		names = append(names, check.Name())
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently, each under its own timeout
func (c *Checker) Run(ctx context.Context) Report {
	return c.run(ctx, c.checks)
}

// RunOne executes a single check by name
func (c *Checker) RunOne(ctx context.Context, name string) (Result, bool) {
	for _, check := range c.checks {
		if check.Name() == name {
			report := c.run(ctx, []Check{check})
			return report.Checks[name], true
		}
	}
	return Result{}, false
}

func (c *Checker) run(ctx context.Context, checks []Check) Report {
	results := make([]Result, len(checks))

	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = c.runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:    StatusOK,
		Checks:    make(map[string]Result, len(results)),
		CheckedAt: c.now().UTC(),
	}
	for _, r := range results {
		report.Checks[r.Name] = r
		if r.Status == StatusError {
			report.Status = StatusError
		}
	}
	return report
}

func (c *Checker) runCheck(ctx context.Context, check Check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	details, err := check.Run(ctx)

	result := Result{
		Name:      check.Name(),
		Status:    StatusOK,
		LatencyMS: time.Since(started).Milliseconds(),
		Details:   details,
	}

	switch {
	case err == nil:
	case IsSkipped(err):
		result.Status = StatusSkipped
		result.Error = err.Error()
	default:
		result.Status = StatusError
		result.Error = err.Error()
	}
	return result
}
