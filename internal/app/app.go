package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"codebridge/internal/config"
	"codebridge/internal/infrastructure"
	"codebridge/internal/license"
	"codebridge/internal/middleware"
	"codebridge/internal/store"
	transporthttp "codebridge/internal/transport/http"
	"codebridge/internal/usage"
)

// Application wires the license server together: config, logging,
// telemetry, the store, the domain services, and the HTTP surface.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	Store     store.Store
	Issuer    *license.Issuer
	Validator *license.Validator
	Limiter   *usage.Limiter

	Router chi.Router
	Server *http.Server

	closeStore func() error
}

// NewApplication builds a fully wired application from the environment.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := infrastructure.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	providers, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("initialize otel: %w", err)
	}

	redisStore, err := store.NewRedisStore(ctx, store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	app, err := newApplication(cfg, logger, redisStore)
	if err != nil {
		redisStore.Close()
		return nil, err
	}
	app.OTelProviders = providers
	app.closeStore = redisStore.Close
	return app, nil
}

// newApplication assembles services and the HTTP surface on top of an
// already connected store. Tests use it with a MemoryStore.
func newApplication(cfg *config.Config, logger *slog.Logger, s store.Store) (*Application, error) {
	issuer, err := license.NewIssuer(s, cfg.License.Secret, logger)
	if err != nil {
		return nil, fmt.Errorf("create issuer: %w", err)
	}
	validator := license.NewValidator(s, cfg.License.DeviceWarnThreshold, logger)
	limiter := usage.NewLimiter(s, validator, cfg.Usage.DailyLimit, logger)

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Store:     s,
		Issuer:    issuer,
		Validator: validator,
		Limiter:   limiter,
	}
	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(a.Logger))
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Logger:         a.Logger,
	}))

	rateLimiter := middleware.NewRateLimiter(
		a.Config.Server.RateLimitRPS,
		a.Config.Server.RateLimitBurst,
		a.Logger,
	)

	healthHandler := transporthttp.NewHealthHandler(a.Store, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter.Handler)

		r.Mount("/license", transporthttp.NewLicenseHandler(a.Issuer, a.Validator, a.Logger).Routes())
		r.Mount("/usage", transporthttp.NewUsageHandler(a.Limiter, a.Logger).Routes())
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/version", healthHandler.Version)
	})

	// Metrics stay outside the rate limiter so scrapes never compete with
	// API traffic.
	r.Handle("/metrics", promhttp.Handler())

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the server and blocks until the context is canceled or the
// listener fails, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "license server listening",
			slog.String("addr", a.Server.Addr),
		)
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown signal received")
		return a.Stop()
	})

	return g.Wait()
}

// Stop drains in-flight requests and side effects, then releases the
// store and telemetry providers.
func (a *Application) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}

	// Let best-effort abuse bookkeeping finish before the store goes away.
	a.Validator.Flush()

	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.Logger.Error("store close failed", slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("otel shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// startupDeadline bounds how long NewApplication may spend reaching the
// store before the process gives up.
const startupDeadline = 10 * time.Second

// Bootstrap builds the application with a bounded startup context.
func Bootstrap() (*Application, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupDeadline)
	defer cancel()
	return NewApplication(ctx)
}
