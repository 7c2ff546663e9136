// Package main is the entry point for the TipKoro API.
//
// It loads configuration, connects Postgres and (optionally) Redis, builds
// the external clients and domain services, and mounts them on the core
// chassis.
//
// Inside AWS Lambda the router is served through a Function URL adapter;
// everywhere else it runs as a plain HTTP server with graceful shutdown on
// SIGINT and SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambdaurl"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"tipkoro/internal/api/handlers"
	"tipkoro/internal/auth"
	"tipkoro/internal/cache"
	"tipkoro/internal/config"
	"tipkoro/internal/core"
	"tipkoro/internal/creators"
	"tipkoro/internal/db"
	"tipkoro/internal/external"
	"tipkoro/internal/feed"
	"tipkoro/internal/identity"
	"tipkoro/internal/metrics"
	"tipkoro/internal/onboarding"
	"tipkoro/internal/payments"
	"tipkoro/internal/payouts"
	"tipkoro/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// telemetry is what both the HTTP chassis and the payment pipeline report to.
type telemetry interface {
	core.MetricsCollector
	payments.Recorder
}

// dependencies are the backends buildServer wires into the services. run
// builds real ones; tests pass in-memory fakes.
type dependencies struct {
	Store         types.ScopedStoreFactory
	Clients       *external.ClientRegistry
	Telemetry     telemetry
	Authenticator core.Authenticator
	RateLimit     core.RateLimitStore
	Probes        []core.HealthProbe
	Clock         types.Clock
}

func run() error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tipkoro API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	var closers []func() error

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	closers = append(closers, func() error { pool.Close(); return nil })

	if cfg.Environment == "local" {
		if err := db.ApplySchema(ctx, pool); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	deps := dependencies{
		Store:  db.NewScopedStore(pool, logger),
		Probes: []core.HealthProbe{core.NewPingProbe("database", pool.Ping)},
		Clock:  types.RealClock{},
	}

	var registryOpts []external.RegistryOption
	deps.Telemetry = metrics.Noop{}
	if !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		registryOpts = append(registryOpts, external.WithSQSSender(sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})))
		if cfg.Observability.EnableMetrics {
			deps.Telemetry = metrics.NewCloudWatchCollector(
				cloudwatch.NewFromConfig(awsCfg),
				cfg.Observability.MetricNamespace,
				logger.With("component", "metrics"),
			)
		}
	}

	deps.Clients, err = external.NewClientRegistry(cfg, logger, registryOpts...)
	if err != nil {
		return fmt.Errorf("building external clients: %w", err)
	}

	if cfg.Identity.JWTPublicKey.IsSet() {
		verifier, err := auth.NewTokenVerifier(auth.TokenVerifierConfig{
			PublicKeyPEM:      cfg.Identity.JWTPublicKey.Unmask(),
			AuthorizedParties: cfg.Identity.AuthorizedParties,
			Logger:            logger.With("component", "auth"),
		})
		if err != nil {
			return fmt.Errorf("building token verifier: %w", err)
		}
		deps.Authenticator = verifier
	} else {
		logger.Warn("CLERK_JWT_PUBLIC_KEY not set; signed-in endpoints will reject every request")
	}

	if cfg.Redis.URL.IsSet() {
		client, err := cache.Connect(ctx, cfg.Redis.URL.Unmask())
		if err != nil {
			return fmt.Errorf("connecting redis: %w", err)
		}
		closers = append(closers, client.Close)
		deps.RateLimit = cache.NewRateLimitStore(client)
		deps.Probes = append(deps.Probes, core.NewPingProbe("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	} else {
		logger.Warn("REDIS_URL not set; rate limiting disabled")
	}

	srv, err := buildServer(cfg, logger, deps)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	for _, c := range closers {
		srv.OnShutdown(c)
	}

	if isLambdaEnvironment() {
		logger.Info("starting in Lambda Function URL mode")
		lambdaurl.Start(srv.Handler())
		return nil
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer constructs every service over deps and mounts the routes.
func buildServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	if deps.Store == nil || deps.Clients == nil {
		return nil, errors.New("store and external clients are required")
	}
	if deps.Telemetry == nil {
		deps.Telemetry = metrics.Noop{}
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = deps.Telemetry
	srv.Authenticator = deps.Authenticator
	srv.RateLimitStore = deps.RateLimit
	srv.HealthProbes = deps.Probes

	hub := feed.NewHub(cfg.Security.CorsAllowedOrigins, logger.With("component", "feed"))

	reconciler := payments.NewReconciler(payments.ReconcilerConfig{
		Store:         deps.Store,
		Admin:         deps.Clients.Admin,
		Feed:          hub,
		Metrics:       deps.Telemetry,
		Clock:         deps.Clock,
		Logger:        logger.With("component", "reconciler"),
		NotifyTimeout: cfg.Admin.Timeout,
	})
	checkout := payments.NewCheckoutService(deps.Clients.Gateway, deps.Store, deps.Clock, logger.With("component", "checkout"), payments.CheckoutConfig{
		AppURL:             cfg.Server.AppURL,
		SignupAmount:       cfg.Pricing.SignupAmount,
		CreatorPromoAmount: cfg.Pricing.CreatorPromoAmount,
		MinTipAmount:       cfg.Pricing.MinTipAmount,
		Currency:           cfg.Pricing.Currency,
	})
	verifier := payments.NewVerifier(deps.Clients.Gateway, deps.Store, reconciler, deps.Telemetry, logger.With("component", "verifier"))

	onboard := onboarding.NewService(deps.Store, checkout, logger.With("component", "onboarding"), onboarding.Config{
		PollAttempts:  cfg.Onboarding.ProfilePollAttempts,
		PollBaseDelay: cfg.Onboarding.ProfilePollBaseDelay,
		PollMaxWait:   cfg.Onboarding.ProfilePollMaxWait,
	})
	syncer := identity.NewSyncer(deps.Clients.IdentityVerifier, deps.Store, logger.With("component", "identity"))
	payoutSvc := payouts.NewService(deps.Store, cfg.Pricing.PlatformFee, cfg.Pricing.Currency, logger.With("component", "payouts"))
	creatorSvc := creators.NewService(deps.Store, logger.With("component", "creators"))

	webhookHandler := handlers.NewWebhookHandler(verifier, syncer, logger)
	paymentHandler := handlers.NewPaymentHandler(checkout, reconciler, verifier, srv.Validator, logger)
	profileHandler := handlers.NewProfileHandler(onboard, srv.Validator, logger)
	creatorHandler := handlers.NewCreatorHandler(creatorSvc, hub, logger)
	payoutHandler := handlers.NewPayoutHandler(payoutSvc, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		webhookHandler.RegisterPublicRoutes,
		paymentHandler.RegisterPublicRoutes,
		profileHandler.RegisterPublicRoutes,
		creatorHandler.RegisterPublicRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireActor)
				paymentHandler.RegisterRoutes(r)
				profileHandler.RegisterRoutes(r)
				creatorHandler.RegisterRoutes(r)
				payoutHandler.RegisterRoutes(r)
			})
		},
	)

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
