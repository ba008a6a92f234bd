// Package app wires configuration, infrastructure, services, and transport
// into a runnable license server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"imgwaved/internal/config"
	"imgwaved/internal/infrastructure"
	"imgwaved/internal/license"
	custommw "imgwaved/internal/middleware"
	"imgwaved/internal/security"
	"imgwaved/internal/services"
	transport "imgwaved/internal/transport/http"
)

// Application is the top-level container holding every wired component.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	OTel   *infrastructure.OTelProviders

	Manager        *license.Manager
	LicenseService services.LicenseService
	WebhookService services.WebhookService
	Journal        *services.WebhookJournal
	AbuseLimiter   *custommw.AbuseLimiter
	Admin          *security.AdminAuthenticator

	Router chi.Router
	server *http.Server
}

// NewApplication builds the application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	otelProviders, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	app := &Application{
		Config: cfg,
		Logger: logger,
		OTel:   otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) initializeServices() error {
	store, err := license.NewFileStore(a.Config.LicensesPath(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open license store: %w", err)
	}

	audit, err := license.NewFileAuditLog(a.Config.PurchasesPath(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open purchase journal: %w", err)
	}

	metrics, err := license.NewMetrics(a.OTel.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	manager, err := license.NewManager(store, audit, a.Logger, license.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create license manager: %w", err)
	}
	if err := manager.WatchStore(); err != nil {
		// Watcher failure degrades external-edit pickup, not serving.
		a.Logger.Warn("license store watcher unavailable", "error", err)
	}
	a.Manager = manager

	a.Journal, err = services.NewWebhookJournal(a.Config.WebhookLogPath())
	if err != nil {
		return fmt.Errorf("failed to open webhook journal: %w", err)
	}

	a.AbuseLimiter = custommw.NewAbuseLimiter(nil, a.Logger)
	a.Admin = security.NewAdminAuthenticator(a.Config.Admin.TokenHash)

	a.LicenseService = services.NewLicenseService(manager, a.Logger, a.OTel.Tracer)
	a.WebhookService = services.NewWebhookService(manager, a.Journal, a.Logger)
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(custommw.CORS(custommw.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			ExposedHeaders: []string{"X-Request-ID"},
			Logger:         a.Logger,
		}))
	}

	if a.Config.Security.RateLimit.Enabled {
		r.Use(custommw.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	licenseHandler := transport.NewLicenseHandler(a.LicenseService, a.AbuseLimiter, a.Admin, a.Logger)
	webhookHandler := transport.NewWebhookHandler(a.WebhookService, a.Journal, a.Logger)
	healthHandler := transport.NewHealthHandler(a.LicenseService, a.Logger)

	r.Get("/healthz", transport.Liveness)
	if a.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTel.PrometheusHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(custommw.Timeout(a.Config.Server.RequestTimeout, a.Logger))

		r.Mount("/status", healthHandler.Routes())
		r.Mount("/license", licenseHandler.Routes())
		r.Mount("/trial", licenseHandler.TrialRoutes())
		r.Mount("/webhooks", webhookHandler.Routes())
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run serves until SIGINT/SIGTERM, then drains within the shutdown timeout.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("license server listening",
			slog.String("addr", a.server.Addr),
			slog.Int("licenses", a.Manager.Count()),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop()
	})

	return g.Wait()
}

// Stop drains in-flight requests and releases resources.
func (a *Application) Stop() error {
	a.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("server shutdown: %w", err)
	}
	if err := a.Manager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.OTel != nil {
		if err := a.OTel.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	infrastructure.CloseLogFile()

	// Give log writers a beat to flush
	time.Sleep(100 * time.Millisecond)
	return firstErr
}
