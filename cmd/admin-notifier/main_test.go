package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"tipkoro/internal/types"
)

type recordingNotifier struct {
	events []types.AdminEvent
	failOn string
}

func (n *recordingNotifier) Notify(_ context.Context, event types.AdminEvent) error {
	if event.Event == n.failOn {
		return errors.New("sink unavailable")
	}
	n.events = append(n.events, event)
	return nil
}

func TestHandler_Handle(t *testing.T) {
	notifier := &recordingNotifier{failOn: types.AdminEventSignupCompleted}
	h := &Handler{notifier: notifier, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"event":"payment.completed","data":{"transaction_id":"t1"}}`},
		{MessageId: "m2", Body: `not json`},
		{MessageId: "m3", Body: `{"event":"signup.completed","data":{}}`},
		{MessageId: "m4", Body: `{"data":{}}`},
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(notifier.events) != 1 || notifier.events[0].Event != types.AdminEventPaymentCompleted {
		t.Errorf("delivered = %+v", notifier.events)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m3" {
		t.Errorf("failures = %+v, want only m3", resp.BatchItemFailures)
	}
}

func TestNewHandler_RequiresWebhookURL(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("ADMIN_WEBHOOK_URL", "")

	if _, err := newHandler(slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error without ADMIN_WEBHOOK_URL")
	}
}

func TestNewHandler_Local(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("ADMIN_WEBHOOK_URL", "https://ops.example.com/hooks/tipkoro")

	h, err := newHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}
	if h.notifier == nil {
		t.Error("notifier not wired")
	}
}
