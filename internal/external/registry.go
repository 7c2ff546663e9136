package external

import (
	"log/slog"
	"net/http"

	"tipkoro/internal/config"
)

// ClientRegistry is what the API needs from the outside world.
type ClientRegistry struct {
	Gateway          PaymentGateway
	Admin            AdminNotifier
	IdentityVerifier IdentityWebhookVerifier
}

// RegistryOption supplies SDK clients that main builds from AWS config.
type RegistryOption func(*registryDeps)

type registryDeps struct {
	sqs SQSSender
}

// WithSQSSender enables the admin event queue when ADMIN_EVENTS_QUEUE_URL is
// also configured.
func WithSQSSender(sender SQSSender) RegistryOption {
	return func(d *registryDeps) { d.sqs = sender }
}

// NewClientRegistry returns stubs for local and test-mode runs. Elsewhere it
// builds the RupantorPay client even without credentials; each gateway call
// then fails with internal_gateway_not_configured.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger, opts ...RegistryOption) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var deps registryDeps
	for _, opt := range opts {
		opt(&deps)
	}

	if cfg.IsLocal() {
		logger.Info("external clients stubbed", "environment", cfg.Environment, "test_mode", cfg.IsTestMode)
		stub := logger.With("mode", "stub")
		return &ClientRegistry{
			Gateway:          NewStubPaymentGateway(stub),
			Admin:            NewStubAdminNotifier(stub),
			IdentityVerifier: NewStubIdentityVerifier(stub),
		}, nil
	}

	logger.Info("external clients live", "environment", cfg.Environment, "gateway_configured", cfg.Gateway.Configured())
	return &ClientRegistry{
		Gateway: NewRupantorClient(&http.Client{Timeout: cfg.Gateway.Timeout}, RupantorClientConfig{
			APIKey:         cfg.Gateway.APIKey,
			ClientHost:     cfg.Gateway.ClientHost,
			BaseURL:        cfg.Gateway.BaseURL,
			APIExternalURL: cfg.Server.APIExternalURL,
			Logger:         logger.With("client", "rupantorpay"),
		}),
		Admin:            newAdminSink(cfg, logger, deps),
		IdentityVerifier: NewSvixVerifier(cfg.Identity.WebhookSecret),
	}, nil
}

// newAdminSink prefers the queue, then the direct webhook. With neither,
// admin events are logged and dropped.
func newAdminSink(cfg *config.Config, logger *slog.Logger, deps registryDeps) AdminNotifier {
	if cfg.AWS.AdminEventsQueue != "" && deps.sqs != nil {
		return NewSQSAdminPublisher(deps.sqs, cfg.AWS.AdminEventsQueue, logger.With("client", "admin-queue"))
	}
	if cfg.Admin.WebhookURL != "" {
		return NewHTTPAdminNotifier(&http.Client{Timeout: cfg.Admin.Timeout}, HTTPAdminNotifierConfig{
			URL:    cfg.Admin.WebhookURL,
			Secret: cfg.Admin.WebhookSecret,
			Logger: logger.With("client", "admin-webhook"),
		})
	}
	logger.Warn("no admin sink configured; admin events will be dropped")
	return NewNoopAdminNotifier(logger)
}
