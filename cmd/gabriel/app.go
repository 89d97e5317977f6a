package main

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/activitymap"
	"github.com/littlegabriel/gabriel/bible"
	"github.com/littlegabriel/gabriel/config"
	"github.com/littlegabriel/gabriel/counsel"
	"github.com/littlegabriel/gabriel/health"
	"github.com/littlegabriel/gabriel/metrics"
	"github.com/littlegabriel/gabriel/persistence"
	"github.com/littlegabriel/gabriel/revocation"
	"github.com/uptrace/bun"
)

// App holds the process wide services. Each With* step fills in one layer.
type App struct {
	config  *config.Config
	logger  *glog.BaseLogger
	db      *bun.DB
	repo    gabriel.RepositoryManager
	metrics *metrics.Collector
	revoker revocation.Store
	redis   *revocation.Redis
	auther  *gabriel.Auther
	routes  *gabriel.RouteAuthenticator
	bible   *bible.Client
	counsel *counsel.Client
	srv     router.Server[*fiber.App]
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

// Activity fans identity and moderation events out to metrics and the log
func (a *App) Activity() gabriel.ActivitySink {
	return gabriel.MultiActivitySink{
		a.metrics.ActivitySink(),
		activitymap.LogSink(a.GetLogger("activity")),
	}
}

func (a *App) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newLogger(cfg config.LogConfig) *glog.BaseLogger {
	output := glog.WithLoggerTypePretty()
	if strings.EqualFold(cfg.Format, "json") {
		output = glog.WithLoggerTypeJSON()
	}

	return glog.NewLogger(
		output,
		glog.WithLevel(logLevel(cfg.Level)),
		glog.WithName("gabriel"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func logLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return glog.Trace
	case "debug":
		return glog.Debug
	case "warn", "warning":
		return glog.Warn
	case "error":
		return glog.Error
	default:
		return glog.Info
	}
}

// Bootstrap loads configuration and sets up logging and metrics. It does not
// touch the database.
func Bootstrap(configFile string) (*App, error) {
	cfg, err := config.Load(config.WithConfigFile(configFile))
	if err != nil {
		return nil, err
	}

	app := &App{
		config:  cfg,
		logger:  newLogger(cfg.Log),
		metrics: metrics.New(nil),
	}

	app.GetLogger("config").Debug("configuration loaded",
		"env", cfg.Env,
		"dialect", persistence.DialectFor(cfg.Database.URL),
		"redis", cfg.Redis.Enabled(),
		"gatekeeper", cfg.Gatekeeper.Mode,
	)

	return app, nil
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := persistence.Open(ctx, app.config.Database.URL)
	if err != nil {
		return err
	}
	app.db = db
	app.repo = gabriel.NewRepositoryManager(db)
	return app.repo.Validate()
}

func WithRevocation(ctx context.Context, app *App) error {
	if !app.config.Redis.Enabled() {
		app.GetLogger("revocation").Info("REDIS_URL not set, token revocation is kept in memory")
		app.revoker = revocation.NewMemory()
		return nil
	}

	client, err := revocation.Dial(ctx, app.config.Redis.URL)
	if err != nil {
		return err
	}
	app.redis = revocation.NewRedis(client)
	app.revoker = app.redis
	return nil
}

func WithAuth(_ context.Context, app *App) error {
	if err := app.config.Validate(); err != nil {
		return err
	}
	if cost := app.config.Auth.PasswordCost; cost != 0 {
		if err := gabriel.SetPasswordHashCost(cost); err != nil {
			return err
		}
	}

	validator := gabriel.NewCredentialValidator(app.repo.Users()).
		WithLogger(app.GetLogger("credentials"))

	app.auther = gabriel.NewAuthenticator(validator, app.config.Auth).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(app.Activity()).
		WithRevoker(app.revoker)

	app.routes = gabriel.NewHTTPAuthenticator(app.auther, app.config.Auth).
		WithLogger(app.GetLogger("auth.http"))

	return nil
}

func WithUpstreams(_ context.Context, app *App) error {
	bc := app.config.Bible
	app.bible = bible.NewClient(bc.APIKey, bc.BaseURL,
		bible.WithTimeout(bc.Timeout),
		bible.WithObserver(app.metrics),
		bible.WithLogger(app.GetLogger("bible")),
	)

	oc := app.config.OpenAI
	app.counsel = counsel.NewClient(counsel.Config{
		APIKey:       oc.APIKey,
		BaseURL:      oc.BaseURL,
		Model:        oc.Model,
		AssistantID:  oc.AssistantID,
		MaxRetries:   oc.MaxRetries,
		Timeout:      oc.Timeout,
		PollInterval: oc.PollInterval,
		PollAttempts: oc.PollAttempts,
	},
		counsel.WithObserver(app.metrics),
		counsel.WithLogger(app.GetLogger("counsel")),
	)
	return nil
}

// WithHTTPServer builds the fiber adapter. Metrics are mounted on the main
// app only when no separate metrics address is configured.
func WithHTTPServer(_ context.Context, app *App) error {
	inline := strings.TrimSpace(app.config.Server.MetricsAddr) == ""

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		f := router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:          true,
			StrictRouting:         false,
			DisableStartupMessage: true,
		}))
		f.Use(app.metrics.FiberMiddleware())
		if inline {
			f.Get("/metrics", adaptor.HTTPHandler(app.metrics.Handler()))
		}
		return f
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv
	return nil
}

// Checks collects every diagnostic the health endpoint and the check
// command can run
func (a *App) Checks(lookup func(string) (string, bool)) *health.Checker {
	checker := health.NewChecker()

	if a.db != nil {
		checker.Register(health.Database(a.db, persistence.DialectFor(a.config.Database.URL)))
	}

	var llm, bib, red health.Pinger
	if a.counsel != nil {
		llm = a.counsel
	}
	if a.bible != nil {
		bib = a.bible
	}
	if a.redis != nil {
		red = a.redis
	}

	return checker.Register(
		health.Upstream(health.CheckLLM, llm),
		health.Upstream(health.CheckBible, bib),
		health.Redis(red),
		health.Env(config.Presence(lookup), "NEXTAUTH_SECRET"),
	)
}
