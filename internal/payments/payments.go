// Package payments reconciles RupantorPay transactions with local state.
//
// A transaction reaches the system twice: through the gateway webhook and
// through the browser returning from the hosted checkout. Both paths ask the
// gateway for the authoritative status and then hand the normalized result
// to the Reconciler, whose writes are idempotent and monotonic so arrival
// order never changes the final rows.
package payments

import (
	"context"

	"tipkoro/internal/types"
)

// Recorder receives payment telemetry.
type Recorder interface {
	RecordVerification(ctx context.Context, source string, status types.PaymentStatus)
	RecordWebhookRejected(ctx context.Context, reason string)
	RecordAdminNotifyFailure(ctx context.Context, event string)
}

// TipPublisher pushes newly recorded tips to live subscribers of a creator.
type TipPublisher interface {
	Publish(creatorID string, tip types.Tip)
}

// Settlement describes what a verified transaction did to local state.
type Settlement struct {
	Outcome types.VerificationOutcome
	// Status is the stored status after the write, which may differ from the
	// gateway's answer when a downgrade was blocked.
	Status types.PaymentStatus
	// Applied is true only for the call that moved the row.
	Applied          bool
	OnboardingStatus types.OnboardingStatus
	CreatorUsername  string
}

type noopRecorder struct{}

func (noopRecorder) RecordVerification(context.Context, string, types.PaymentStatus) {}
func (noopRecorder) RecordWebhookRejected(context.Context, string)                   {}
func (noopRecorder) RecordAdminNotifyFailure(context.Context, string)                {}

type noopPublisher struct{}

func (noopPublisher) Publish(string, types.Tip) {}
