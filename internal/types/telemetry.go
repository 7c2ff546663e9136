package types

// Telemetry metric names for CloudWatch.
const (
	MetricAPILatency          = "APILatency"
	MetricAPIRequest          = "APIRequest"
	MetricPaymentVerification = "PaymentVerification"
	MetricWebhookRejected     = "WebhookRejected"
	MetricAdminNotifyFailure  = "AdminNotifyFailure"

	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimSource   = "Source"
	DimOutcome  = "Outcome"

	MetricNamespace = "TipKoro"
)

// Verification sources recorded on payment metrics and logs.
const (
	SourceWebhook  = "webhook"
	SourceRedirect = "redirect"
)
