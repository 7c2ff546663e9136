package payments

import (
	"context"
	"log/slog"
	"time"

	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

// DefaultNotifyTimeout bounds each admin notification.
const DefaultNotifyTimeout = 3 * time.Second

// ReconcilerConfig wires a Reconciler.
type ReconcilerConfig struct {
	Store         types.ScopedStoreFactory
	Admin         external.AdminNotifier
	Feed          TipPublisher
	Metrics       Recorder
	Clock         types.Clock
	Logger        *slog.Logger
	NotifyTimeout time.Duration
}

// Reconciler applies verified gateway results to signups, subscriptions,
// tips and pending intents. Writes run with the service role: ownership is
// checked by the callers before a result reaches here.
type Reconciler struct {
	store         types.ScopedStoreFactory
	admin         external.AdminNotifier
	feed          TipPublisher
	metrics       Recorder
	clock         types.Clock
	logger        *slog.Logger
	notifyTimeout time.Duration
}

// NewReconciler creates a Reconciler, filling optional collaborators with no-ops.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	r := &Reconciler{
		store:         cfg.Store,
		admin:         cfg.Admin,
		feed:          cfg.Feed,
		metrics:       cfg.Metrics,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		notifyTimeout: cfg.NotifyTimeout,
	}
	if r.admin == nil {
		r.admin = external.NewNoopAdminNotifier(slog.Default())
	}
	if r.feed == nil {
		r.feed = noopPublisher{}
	}
	if r.metrics == nil {
		r.metrics = noopRecorder{}
	}
	if r.clock == nil {
		r.clock = types.RealClock{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.notifyTimeout <= 0 {
		r.notifyTimeout = DefaultNotifyTimeout
	}
	return r
}

// enforceExpectedAmount treats a completed payment below a server-side
// expected amount as failed. A missing amount takes the expected value.
func (r *Reconciler) enforceExpectedAmount(ctx context.Context, res types.VerificationResult, expected float64) types.VerificationResult {
	if expected <= 0 {
		return res
	}
	if res.Amount == 0 {
		res.Amount = expected
	}
	if res.Status == types.PaymentCompleted && res.Amount < expected {
		r.logger.WarnContext(ctx, "amount_mismatch",
			"transaction_id", res.TransactionID,
			"amount", res.Amount,
			"expected", expected,
		)
		res.Status = types.PaymentFailed
		res.Verified = false
	}
	return res
}

// ApplySignupPayment upserts the anonymous-funnel signup keyed by the
// transaction id.
func (r *Reconciler) ApplySignupPayment(ctx context.Context, source string, res types.VerificationResult) (*Settlement, error) {
	row := &types.CreatorSignup{
		TransactionID: res.TransactionID,
		PaymentStatus: res.Status,
		PaymentMethod: res.PaymentMethod,
		Amount:        res.Amount,
		Currency:      res.Currency,
		Email:         res.Email,
	}

	var applied bool
	var stored *types.CreatorSignup
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		if applied, err = repos.Signups().UpsertPayment(ctx, row); err != nil {
			return err
		}
		stored, err = repos.Signups().GetByTransaction(ctx, res.TransactionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	status := res.Status
	if stored != nil {
		status = stored.PaymentStatus
	}
	r.logTransition(ctx, source, types.OutcomeSignup, res, status, applied)
	if applied && status == types.PaymentCompleted {
		r.notifyPaymentCompleted(ctx, res)
	}
	return &Settlement{Outcome: types.OutcomeSignup, Status: status, Applied: applied}, nil
}

// ApplySubscriptionStatus moves sub toward the verified status: completed
// settles it, failed closes a pending one, pending changes nothing.
func (r *Reconciler) ApplySubscriptionStatus(ctx context.Context, source string, sub *types.CreatorSubscription, res types.VerificationResult) (*Settlement, error) {
	res = r.enforceExpectedAmount(ctx, res, sub.Amount)

	switch res.Status {
	case types.PaymentCompleted:
		return r.completeSubscription(ctx, source, sub, res)
	case types.PaymentFailed:
		var marked bool
		err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
			var err error
			marked, err = repos.Subscriptions().MarkFailed(ctx, sub.ID, res.TransactionID, res.PaymentMethod)
			return err
		})
		if err != nil {
			return nil, err
		}
		status := sub.PaymentStatus
		if marked {
			status = types.PaymentFailed
		}
		r.logTransition(ctx, source, types.OutcomeSubscription, res, status, marked)
		return &Settlement{Outcome: types.OutcomeSubscription, Status: status, Applied: marked}, nil
	default:
		r.logTransition(ctx, source, types.OutcomeSubscription, res, sub.PaymentStatus, false)
		return &Settlement{Outcome: types.OutcomeSubscription, Status: sub.PaymentStatus}, nil
	}
}

func (r *Reconciler) completeSubscription(ctx context.Context, source string, sub *types.CreatorSubscription, res types.VerificationResult) (*Settlement, error) {
	verifiedAt := r.clock.Now()
	completion := types.SubscriptionCompletion{
		TransactionID: res.TransactionID,
		PaymentMethod: res.PaymentMethod,
		Amount:        res.Amount,
		Currency:      res.Currency,
		SignupDate:    verifiedAt,
		BillingStart:  verifiedAt,
		ActiveUntil:   types.PromoPeriodEnd(verifiedAt),
	}

	var stored *types.CreatorSubscription
	var applied bool
	var profile *types.Profile
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		stored, applied, err = repos.Subscriptions().Complete(ctx, sub.ID, completion)
		if err != nil {
			return err
		}
		if stored.TransactionID != res.TransactionID {
			return nil
		}
		// Retried on every settle so a crash between the two writes heals.
		if _, err = repos.Profiles().AdvanceOnboarding(ctx, sub.ProfileID, types.OnboardingPayment, types.OnboardingProfile); err != nil {
			return err
		}
		profile, err = repos.Profiles().GetByID(ctx, sub.ProfileID)
		return err
	})
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeConflictIntentResolved {
			r.reportUnmatched(ctx, source, res, "transaction already settled another subscription")
			return &Settlement{Outcome: types.OutcomeSubscription, Status: sub.PaymentStatus}, nil
		}
		return nil, err
	}

	if stored.TransactionID != res.TransactionID {
		r.reportUnmatched(ctx, source, res, "subscription already completed by another transaction")
		return &Settlement{Outcome: types.OutcomeSubscription, Status: stored.PaymentStatus}, nil
	}

	r.logTransition(ctx, source, types.OutcomeSubscription, res, stored.PaymentStatus, applied)
	if applied {
		r.notifyPaymentCompleted(ctx, res)
		r.notify(ctx, types.AdminEventSubscriptionCompleted, map[string]any{
			"transaction_id": res.TransactionID,
			"profile_id":     stored.ProfileID,
			"amount":         stored.Amount,
			"payment_method": stored.PaymentMethod,
			"promo":          stored.Promo,
			"billing_start":  completion.BillingStart,
			"active_until":   completion.ActiveUntil,
		})
	}

	out := &Settlement{Outcome: types.OutcomeSubscription, Status: stored.PaymentStatus, Applied: applied}
	if profile != nil {
		out.OnboardingStatus = profile.OnboardingStatus
	}
	return out, nil
}

// CompleteSubscription settles the subscription of profileID that res
// belongs to: the one already bound to the transaction, else the pending
// one, else a failed one superseded by a fresh success.
func (r *Reconciler) CompleteSubscription(ctx context.Context, source, profileID string, res types.VerificationResult) (*Settlement, error) {
	var sub *types.CreatorSubscription
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		sub, err = subscriptionFor(ctx, repos.Subscriptions(), profileID, res.TransactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		if res.Verified {
			r.reportUnmatched(ctx, source, res, "no subscription awaiting payment")
		}
		return &Settlement{Outcome: types.OutcomeSubscription, Status: res.Status}, nil
	}
	return r.ApplySubscriptionStatus(ctx, source, sub, res)
}

func subscriptionFor(ctx context.Context, subs types.SubscriptionRepository, profileID, transactionID string) (*types.CreatorSubscription, error) {
	bound, err := subs.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if bound != nil && bound.ProfileID == profileID {
		return bound, nil
	}
	pending, err := subs.GetPendingByProfile(ctx, profileID)
	if err != nil || pending != nil {
		return pending, err
	}
	latest, err := subs.GetLatestByProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.PaymentStatus == types.PaymentFailed {
		return latest, nil
	}
	return nil, nil
}

// SettleIntent resolves a pending intent with a verification result.
func (r *Reconciler) SettleIntent(ctx context.Context, source string, intent *types.PendingIntent, res types.VerificationResult) (*Settlement, error) {
	res = r.enforceExpectedAmount(ctx, res, intent.Amount)

	switch intent.Kind {
	case types.IntentTip:
		return r.RecordTip(ctx, source, intent, res)
	case types.IntentCreatorSubscription:
		out, err := r.CompleteSubscription(ctx, source, intent.ProfileID, res)
		if err != nil {
			return nil, err
		}
		if out.Status == types.PaymentCompleted {
			r.resolveIntent(ctx, intent, res.TransactionID)
		}
		return out, nil
	default:
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "unknown intent kind "+string(intent.Kind), nil)
	}
}

// RecordTip stores the tip of a verified tip intent at the amount the
// supporter agreed to. Creator totals move only on first insert, so replays
// neither double count nor republish.
func (r *Reconciler) RecordTip(ctx context.Context, source string, intent *types.PendingIntent, res types.VerificationResult) (*Settlement, error) {
	out := &Settlement{
		Outcome:         types.OutcomeTip,
		Status:          res.Status,
		CreatorUsername: intent.Details.CreatorUsername,
	}
	if !res.Verified {
		r.logTransition(ctx, source, types.OutcomeTip, res, res.Status, false)
		return out, nil
	}

	amount := res.Amount
	if intent.Amount > 0 {
		if res.Amount > intent.Amount {
			r.logger.WarnContext(ctx, "amount_above_intent",
				"transaction_id", res.TransactionID,
				"amount", res.Amount,
				"expected", intent.Amount,
			)
		}
		amount = intent.Amount
	}

	d := intent.Details
	tip := &types.Tip{
		CreatorID:      intent.CreatorID,
		SupporterID:    intent.ProfileID,
		SupporterName:  d.SupporterName,
		SupporterEmail: d.SupporterEmail,
		Amount:         amount,
		Currency:       res.Currency,
		Message:        d.Message,
		IsAnonymous:    d.IsAnonymous,
		PaymentMethod:  res.PaymentMethod,
		PaymentStatus:  types.PaymentCompleted,
		TransactionID:  res.TransactionID,
		CreatedAt:      r.clock.Now(),
	}
	if tip.SupporterEmail == "" {
		tip.SupporterEmail = res.Email
	}
	if tip.SupporterName == "" {
		tip.SupporterName = "Anonymous"
	}

	var inserted bool
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		if inserted, err = repos.Tips().Insert(ctx, tip); err != nil {
			return err
		}
		if inserted {
			return repos.Profiles().AddTipTotals(ctx, tip.CreatorID, tip.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.resolveIntent(ctx, intent, res.TransactionID)
	r.logTransition(ctx, source, types.OutcomeTip, res, types.PaymentCompleted, inserted)
	out.Status = types.PaymentCompleted
	out.Applied = inserted
	if inserted {
		r.feed.Publish(tip.CreatorID, tip.Redacted())
		r.notifyPaymentCompleted(ctx, res)
	}
	return out, nil
}

// BackfillTip applies a later verification to a tip already bound to the
// transaction. Completed tips never move.
func (r *Reconciler) BackfillTip(ctx context.Context, source string, tip *types.Tip, res types.VerificationResult) (*Settlement, error) {
	out := &Settlement{Outcome: types.OutcomeTip, Status: tip.PaymentStatus}
	if !tip.PaymentStatus.CanTransitionTo(res.Status) {
		r.logTransition(ctx, source, types.OutcomeTip, res, tip.PaymentStatus, false)
		return out, nil
	}

	var changed bool
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		if changed, err = repos.Tips().UpdateStatus(ctx, res.TransactionID, res.Status); err != nil {
			return err
		}
		if changed && res.Status == types.PaymentCompleted {
			return repos.Profiles().AddTipTotals(ctx, tip.CreatorID, tip.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		out.Status = res.Status
		out.Applied = true
	}
	r.logTransition(ctx, source, types.OutcomeTip, res, out.Status, changed)
	return out, nil
}

func (r *Reconciler) resolveIntent(ctx context.Context, intent *types.PendingIntent, transactionID string) {
	if intent.Status == types.IntentResolved {
		return
	}
	err := r.store.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		_, err := repos.Intents().Resolve(ctx, intent.ID, transactionID)
		return err
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to resolve pending intent",
			"intent_id", intent.ID,
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

func (r *Reconciler) logTransition(ctx context.Context, source string, outcome types.VerificationOutcome, res types.VerificationResult, stored types.PaymentStatus, applied bool) {
	attrs := []any{
		"transaction_id", res.TransactionID,
		"status", res.Status,
		"stored_status", stored,
		"source", source,
		"outcome", outcome,
	}
	switch {
	case applied:
		r.logger.InfoContext(ctx, "payment state applied", attrs...)
	case stored == types.PaymentCompleted && res.Status != types.PaymentCompleted:
		r.logger.WarnContext(ctx, "downgrade_blocked", attrs...)
	default:
		r.logger.DebugContext(ctx, "payment state unchanged", attrs...)
	}
}

func (r *Reconciler) reportUnmatched(ctx context.Context, source string, res types.VerificationResult, reason string) {
	r.logger.WarnContext(ctx, "verified payment matched nothing",
		"transaction_id", res.TransactionID,
		"source", source,
		"reason", reason,
	)
	r.notify(ctx, types.AdminEventPaymentUnmatched, map[string]any{
		"transaction_id": res.TransactionID,
		"payment_method": res.PaymentMethod,
		"amount":         res.Amount,
		"email":          res.Email,
		"reason":         reason,
	})
}

func (r *Reconciler) notifyPaymentCompleted(ctx context.Context, res types.VerificationResult) {
	r.notify(ctx, types.AdminEventPaymentCompleted, map[string]any{
		"transaction_id": res.TransactionID,
		"payment_method": res.PaymentMethod,
		"amount":         res.Amount,
		"email":          res.Email,
	})
}

// notify delivers an admin event within notifyTimeout. Failures are logged
// and counted, never returned.
func (r *Reconciler) notify(ctx context.Context, event string, data map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
	defer cancel()

	err := r.admin.Notify(ctx, types.AdminEvent{Event: event, Timestamp: r.clock.Now(), Data: data})
	if err != nil {
		r.logger.WarnContext(ctx, "admin notification failed", "event", event, "error", err)
		r.metrics.RecordAdminNotifyFailure(ctx, event)
	}
}
