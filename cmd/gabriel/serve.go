package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/littlegabriel/gabriel"
	"github.com/littlegabriel/gabriel/bible"
	"github.com/littlegabriel/gabriel/counsel"
	"github.com/littlegabriel/gabriel/health"
	"github.com/littlegabriel/gabriel/middleware/gatekeeper"
	"github.com/littlegabriel/gabriel/persistence"
	"github.com/littlegabriel/gabriel/prayer"
	"github.com/spf13/cobra"
)

func serveCmd(configFile *string) *cobra.Command {
	var (
		port    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := Bootstrap(*configFile)
			if err != nil {
				return err
			}
			if port != "" {
				app.config.Server.Port = port
			}
			return serve(cmd.Context(), app, migrate)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides PORT")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")

	return cmd
}

func serve(ctx context.Context, app *App, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := app.GetLogger("serve")

	steps := []func(context.Context, *App) error{
		WithPersistence,
		WithRevocation,
		WithAuth,
		WithUpstreams,
		WithHTTPServer,
	}
	for _, step := range steps {
		if err := step(ctx, app); err != nil {
			app.Close()
			return err
		}
	}
	defer app.Close()

	if migrate {
		if err := persistence.Migrate(ctx, app.db); err != nil {
			return err
		}
	}

	Routes(app)

	addr := app.config.Server.Addr()
	go func() {
		if err := app.srv.Serve(addr); err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}()
	logger.Info("listening", "addr", addr, "gatekeeper", app.config.Gatekeeper.Mode)

	metricsSrv := serveMetrics(app)

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return app.srv.Shutdown(shutdownCtx)
}

// Routes mounts every controller on the server router
func Routes(app *App) {
	r := app.srv.Router()
	activity := app.Activity()

	authController := gabriel.NewAuthController(
		gabriel.WithControllerLogger(app.GetLogger("auth.controller")),
		gabriel.WithControllerRepository(app.repo),
		gabriel.WithControllerAuthenticator(app.routes),
		gabriel.WithControllerSitePassword(gabriel.NewSitePassword(
			app.config.Auth.SitePassword,
			app.config.Auth.SitePasswordHash,
		)),
		gabriel.WithControllerActivitySink(activity),
		gabriel.WithControllerDebug(app.config.Env == "development"),
	)
	authController.UseHashid = app.config.Auth.UseHashid
	gabriel.RegisterAuthRoutes(r.Group("/api/auth"), authController)

	gabriel.RegisterAdminRoutes(r.Group("/api/admin/users"),
		gabriel.NewAdminController(app.repo, app.routes).
			WithLogger(app.GetLogger("admin")).
			WithActivitySink(activity),
	)

	prayer.RegisterRoutes(r.Group("/api/prayer-requests"),
		prayer.NewController(app.db, prayer.NewStore(app.db), app.routes).
			WithLogger(app.GetLogger("prayer")).
			WithActivitySink(activity),
	)

	bible.RegisterRoutes(r.Group("/api/bible"),
		bible.NewController(app.bible).WithLogger(app.GetLogger("bible")),
	)

	svc := counsel.NewService(app.counsel, counsel.Selection{
		ForceAssistant: app.config.OpenAI.ForceAssistant,
		ForceFallback:  app.config.OpenAI.ForceFallback,
	}).WithLogger(app.GetLogger("counsel"))
	counsel.RegisterRoutes(r.Group("/api"),
		counsel.NewController(svc, app.routes).WithLogger(app.GetLogger("counsel")),
	)

	health.RegisterRoutes(r.Group("/api/health"),
		health.NewController(app.Checks(os.LookupEnv)).WithLogger(app.GetLogger("health")),
	)

	gate := gatekeeper.New(gatekeeper.Config{
		Mode:             gatekeeper.Mode(app.config.Gatekeeper.Mode),
		RejectedRouteKey: app.config.Auth.RejectedRouteKey,
		SecureCookies:    app.config.Auth.SecureCookies,
		Verifier:         app.auther,
		Logger:           app.GetLogger("gatekeeper"),
	})
	if !MountPages(r, app.config.Server.WebRoot, gate) {
		app.GetLogger("gatekeeper").Info("no web root configured, page gatekeeper not mounted")
	}
}

func serveMetrics(app *App) *http.Server {
	addr := app.config.Server.MetricsAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := app.GetLogger("metrics")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
