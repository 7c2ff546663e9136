// Package main is the entry point for the admin notifier Lambda.
//
// The API queues admin events on SQS when ADMIN_EVENTS_QUEUE_URL is set. This
// worker drains that queue and posts each event to the signed operator
// webhook. Failed deliveries are reported as partial batch failures so SQS
// redelivers only those messages; malformed bodies are acknowledged and
// dropped.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/kelseyhightower/envconfig"

	"tipkoro/internal/config"
	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

// Handler delivers queued admin events.
type Handler struct {
	notifier external.AdminNotifier
	logger   *slog.Logger
}

// Handle processes one SQS batch.
func (h *Handler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range ev.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "admin event delivery failed",
				"message_id", record.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return resp, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var event types.AdminEvent
	if err := json.Unmarshal([]byte(record.Body), &event); err != nil || event.Event == "" {
		// Redelivery cannot fix a bad body.
		h.logger.WarnContext(ctx, "dropping malformed admin event",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	return h.notifier.Notify(ctx, event)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	handler, err := newHandler(logger)
	if err != nil {
		logger.Error("admin notifier init failed", "error", err)
		os.Exit(1)
	}
	lambda.Start(handler.Handle)
}

func newHandler(logger *slog.Logger) (*Handler, error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	if err := config.ResolveSecrets(provider); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	var cfg config.AdminConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading admin config: %w", err)
	}
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("ADMIN_WEBHOOK_URL is required")
	}

	return &Handler{
		notifier: external.NewHTTPAdminNotifier(&http.Client{Timeout: cfg.Timeout}, external.HTTPAdminNotifierConfig{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
			Logger: logger.With("client", "admin-webhook"),
		}),
		logger: logger,
	}, nil
}
