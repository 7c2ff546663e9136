package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"tipkoro/internal/types"
)

// AdminSignatureHeader carries "t=<unix>,v1=<hex hmac>" over "<unix>.<body>".
const AdminSignatureHeader = "X-TipKoro-Signature"

// SignAdminPayload returns the signature header value for payload.
func SignAdminPayload(payload []byte, secret string, now time.Time) string {
	ts := now.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// HTTPAdminNotifier posts admin events to the operator webhook.
type HTTPAdminNotifier struct {
	base   *BaseClient
	url    string
	secret types.SecretString
	clock  types.Clock
	logger *slog.Logger
}

// HTTPAdminNotifierConfig configures an HTTPAdminNotifier.
type HTTPAdminNotifierConfig struct {
	URL    string
	Secret types.SecretString
	Logger *slog.Logger
}

// NewHTTPAdminNotifier creates an HTTPAdminNotifier. The sink is retried at
// most once so the caller's bounded timeout is respected.
func NewHTTPAdminNotifier(httpClient *http.Client, cfg HTTPAdminNotifierConfig) *HTTPAdminNotifier {
	base := NewBaseClient(httpClient, "admin-webhook", RetryPolicy{
		MaxRetries: 1,
		MinWait:    200 * time.Millisecond,
		MaxWait:    time.Second,
	}, "TipKoro-Admin/1.0")
	return NewHTTPAdminNotifierWithBase(base, cfg)
}

// NewHTTPAdminNotifierWithBase creates an HTTPAdminNotifier with a pre-configured BaseClient.
func NewHTTPAdminNotifierWithBase(base *BaseClient, cfg HTTPAdminNotifierConfig) *HTTPAdminNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAdminNotifier{
		base:   base,
		url:    cfg.URL,
		secret: cfg.Secret,
		clock:  types.RealClock{},
		logger: logger,
	}
}

// Notify posts the event as JSON.
func (n *HTTPAdminNotifier) Notify(ctx context.Context, event types.AdminEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize admin event", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create admin webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret.IsSet() {
		req.Header.Set(AdminSignatureHeader, SignAdminPayload(body, n.secret.Unmask(), n.clock.Now()))
	}

	resp, err := n.base.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamAdminSink, "admin webhook delivery failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppError(types.ErrCodeUpstreamAdminSink,
			fmt.Sprintf("admin webhook returned %d", resp.StatusCode),
			fmt.Errorf("admin webhook %d: %s", resp.StatusCode, snippet))
	}
	n.logger.InfoContext(ctx, "admin event delivered", "event", event.Event)
	return nil
}

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSAdminPublisher queues admin events for the admin-notifier worker, which
// delivers them to the webhook with its own retries.
type SQSAdminPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSAdminPublisher creates a publisher targeting queueURL.
func NewSQSAdminPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSAdminPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSAdminPublisher{client: client, queueURL: queueURL, logger: logger}
}

// Notify enqueues the event.
func (p *SQSAdminPublisher) Notify(ctx context.Context, event types.AdminEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize admin event", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamAdminSink, "failed to enqueue admin event", err)
	}
	p.logger.InfoContext(ctx, "admin event queued", "event", event.Event)
	return nil
}

// NoopAdminNotifier is used when no admin sink is configured.
type NoopAdminNotifier struct {
	logger *slog.Logger
}

// NewNoopAdminNotifier creates a NoopAdminNotifier.
func NewNoopAdminNotifier(logger *slog.Logger) *NoopAdminNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopAdminNotifier{logger: logger}
}

// Notify logs and drops the event.
func (n *NoopAdminNotifier) Notify(ctx context.Context, event types.AdminEvent) error {
	n.logger.DebugContext(ctx, "admin sink not configured; event dropped", "event", event.Event)
	return nil
}

var (
	_ AdminNotifier = (*HTTPAdminNotifier)(nil)
	_ AdminNotifier = (*SQSAdminPublisher)(nil)
	_ AdminNotifier = (*NoopAdminNotifier)(nil)
)
