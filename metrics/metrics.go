// Package metrics exposes Prometheus collectors for authentication events,
// HTTP traffic and upstream calls.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/littlegabriel/gabriel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gabriel"

// Outcome labels for upstream calls
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type Collector struct {
	registry *prometheus.Registry

	authEvents       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	upstreamDuration *prometheus.HistogramVec
}

// New registers every collector on reg. A nil registry gets a fresh one with
// the Go and process collectors attached.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		authEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_events_total",
				Help:      "Authentication and moderation events by type",
			},
			[]string{"event"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_call_duration_seconds",
				Help:      "Latency of calls to hosted dependencies",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"service", "operation", "outcome"},
		),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the text exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one call to a hosted dependency
func (c *Collector) ObserveUpstream(service, operation string, started time.Time, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	c.upstreamDuration.
		WithLabelValues(service, operation, outcome).
		Observe(time.Since(started).Seconds())
}

// FiberMiddleware counts requests by route pattern so path parameters do not
// explode the label set
func (c *Collector) FiberMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		route := "unmatched"
		if r := ctx.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		status := ctx.Response().StatusCode()
		if err != nil {
			if ferr, ok := err.(*fiber.Error); ok {
				status = ferr.Code
			}
		}

		method := ctx.Method()
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

		return err
	}
}

// ActivitySink turns identity activity events into counters
type ActivitySink struct {
	collector *Collector
}

var _ gabriel.ActivitySink = (*ActivitySink)(nil)

func (c *Collector) ActivitySink() *ActivitySink {
	return &ActivitySink{collector: c}
}

func (s *ActivitySink) Record(_ context.Context, event gabriel.ActivityEvent) error {
	if s == nil || s.collector == nil || event.EventType == "" {
		return nil
	}
	s.collector.authEvents.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// UpstreamObserver is the hook the Bible and LLM clients call after every
// request
type UpstreamObserver interface {
	ObserveUpstream(service, operation string, started time.Time, err error)
}

var _ UpstreamObserver = (*Collector)(nil)
