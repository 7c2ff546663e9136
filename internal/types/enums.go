package types

// AccountType is the role a profile chose during onboarding.
type AccountType string

const (
	AccountTypeSupporter AccountType = "supporter"
	AccountTypeCreator   AccountType = "creator"
)

// IsValid reports whether the account type is one of the known values.
func (a AccountType) IsValid() bool {
	return a == AccountTypeSupporter || a == AccountTypeCreator
}

// OnboardingStatus is the persisted step of a profile's onboarding.
type OnboardingStatus string

const (
	OnboardingPending     OnboardingStatus = "pending"
	OnboardingAccountType OnboardingStatus = "account_type"
	OnboardingPayment     OnboardingStatus = "payment"
	OnboardingProfile     OnboardingStatus = "profile"
	OnboardingCompleted   OnboardingStatus = "completed"
)

// Rank orders onboarding states so forward progress can be compared.
// Pending and account_type share the first rank.
func (s OnboardingStatus) Rank() int {
	switch s {
	case OnboardingPending, OnboardingAccountType:
		return 0
	case OnboardingPayment:
		return 1
	case OnboardingProfile:
		return 2
	case OnboardingCompleted:
		return 3
	default:
		return -1
	}
}

// PaymentStatus is the normalized state of a gateway transaction.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// CanTransitionTo reports whether a stored record in status s may be moved to
// next. Completed is terminal; failed may only be superseded by a fresh
// verified completion; nothing returns to pending once it has left it.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentCompleted || next == PaymentFailed
	case PaymentFailed:
		return next == PaymentCompleted
	default:
		return false
	}
}

// PayoutMethod is where a creator receives money.
type PayoutMethod string

const (
	PayoutBkash  PayoutMethod = "bkash"
	PayoutNagad  PayoutMethod = "nagad"
	PayoutRocket PayoutMethod = "rocket"
	PayoutBank   PayoutMethod = "bank"
)

// IsValid reports whether the payout method is supported.
func (p PayoutMethod) IsValid() bool {
	switch p {
	case PayoutBkash, PayoutNagad, PayoutRocket, PayoutBank:
		return true
	}
	return false
}

// IntentKind identifies what a pending checkout will settle.
type IntentKind string

const (
	IntentTip                 IntentKind = "tip"
	IntentCreatorSubscription IntentKind = "creator_subscription"
)

// IntentStatus is the lifecycle of a pending intent.
type IntentStatus string

const (
	IntentOpen     IntentStatus = "open"
	IntentResolved IntentStatus = "resolved"
)

// WithdrawalStatus is the back-office lifecycle of a payout request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
)

// VerificationOutcome names the entity a verified transaction closed.
type VerificationOutcome string

const (
	OutcomeTip          VerificationOutcome = "tip"
	OutcomeSubscription VerificationOutcome = "subscription"
	OutcomeSignup       VerificationOutcome = "signup"
	// OutcomeUnmatched means the payment is real but no local record may claim it.
	OutcomeUnmatched VerificationOutcome = "unmatched"
)

// Admin event names delivered to the operator sink.
const (
	AdminEventPaymentCompleted      = "payment.completed"
	AdminEventSignupCompleted       = "signup.completed"
	AdminEventSubscriptionCompleted = "subscription.completed"
	// AdminEventPaymentUnmatched flags money received that settled nothing.
	AdminEventPaymentUnmatched = "payment.unmatched"
)

// DefaultCurrency is used when the gateway omits one.
const DefaultCurrency = "BDT"
