// Package config defines the process configuration for the TipKoro API and its
// workers. Configuration is loaded once at start-up and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Gateway credentials are deliberately optional at boot. Requests that need the
// gateway fail closed with a configuration error when they are absent.
package config

import (
	"time"

	"tipkoro/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"tipkoro-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Gateway       GatewayConfig
	Identity      IdentityConfig
	Admin         AdminConfig
	Pricing       PricingConfig
	Redis         RedisConfig
	Onboarding    OnboardingConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env.
	Build BuildInfo
}

// IsLocal reports whether external providers should be stubbed.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv || c.IsTestMode
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs, no trailing slash.
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"` // e.g., https://api.tipkoro.com
	AppURL         string `envconfig:"APP_URL" validate:"required,url"`          // e.g., https://tipkoro.com

	// Kept under the Lambda hard timeout. Websocket upgrades are exempt.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-south-1"`

	// AdminEventsQueue routes admin notifications through SQS when set.
	AdminEventsQueue string `envconfig:"ADMIN_EVENTS_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support, empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// GatewayConfig holds RupantorPay credentials and client tuning.
type GatewayConfig struct {
	APIKey     SecretString  `envconfig:"RUPANTOR_API_KEY"`
	ClientHost string        `envconfig:"RUPANTOR_CLIENT_HOST"`
	BaseURL    string        `envconfig:"RUPANTOR_BASE_URL" default:"https://payment.rupantorpay.com/api" validate:"url"`
	Timeout    time.Duration `envconfig:"RUPANTOR_TIMEOUT" default:"15s"`
}

// Configured reports whether both gateway credentials are present.
func (g GatewayConfig) Configured() bool {
	return g.APIKey.IsSet() && g.ClientHost != ""
}

// IdentityConfig holds identity provider verification material.
type IdentityConfig struct {
	// PEM-encoded RSA public key used to verify session tokens.
	JWTPublicKey      SecretString `envconfig:"CLERK_JWT_PUBLIC_KEY"`
	WebhookSecret     SecretString `envconfig:"CLERK_WEBHOOK_SECRET"`
	AuthorizedParties []string     `envconfig:"CLERK_AUTHORIZED_PARTIES"`
}

// AdminConfig holds the operator notification sink.
type AdminConfig struct {
	WebhookURL    string        `envconfig:"ADMIN_WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret SecretString  `envconfig:"ADMIN_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"ADMIN_NOTIFY_TIMEOUT" default:"3s"`
}

// PricingConfig holds amounts in BDT.
type PricingConfig struct {
	CreatorPromoAmount float64 `envconfig:"CREATOR_PROMO_AMOUNT" default:"10" validate:"gt=0"`
	SignupAmount       float64 `envconfig:"SIGNUP_AMOUNT" default:"150" validate:"gt=0"`
	PlatformFee        float64 `envconfig:"PLATFORM_FEE" default:"150" validate:"gte=0"`
	MinTipAmount       float64 `envconfig:"MIN_TIP_AMOUNT" default:"10" validate:"gt=0"`
	Currency           string  `envconfig:"CURRENCY" default:"BDT"`
}

// RedisConfig holds the rate limit store. An empty URL disables rate limiting.
type RedisConfig struct {
	URL               SecretString  `envconfig:"REDIS_URL"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"120" validate:"gt=0"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// OnboardingConfig tunes the lazy profile fetch.
type OnboardingConfig struct {
	ProfilePollAttempts  int           `envconfig:"PROFILE_POLL_ATTEMPTS" default:"5" validate:"gte=1"`
	ProfilePollBaseDelay time.Duration `envconfig:"PROFILE_POLL_BASE_DELAY" default:"200ms"`
	ProfilePollMaxWait   time.Duration `envconfig:"PROFILE_POLL_MAX_WAIT" default:"3s"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TipKoro"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
