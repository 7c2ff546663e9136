package types

import (
	"context"
	"time"
)

// ProfileRepository is the data access interface for profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	// CreateIfAbsent inserts p unless a profile with the same user_id exists,
	// and returns the stored row either way.
	CreateIfAbsent(ctx context.Context, p *Profile) (*Profile, error)
	// UpsertFromIdentity writes identity-owned fields, keeping any username
	// and onboarding progress already stored.
	UpsertFromIdentity(ctx context.Context, p *Profile) (*Profile, error)
	UpdateIdentityFields(ctx context.Context, userID string, upd IdentityUpdate) error
	DeleteByUserID(ctx context.Context, userID string) (bool, error)
	Update(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error)
	SetOnboarding(ctx context.Context, userID string, accountType AccountType, status OnboardingStatus) (*Profile, error)
	// AdvanceOnboarding moves status from one state to another and reports
	// whether the row was in the expected state.
	AdvanceOnboarding(ctx context.Context, profileID string, from, to OnboardingStatus) (bool, error)
	// UsernameOwner returns the user_id holding username, or "" if unused.
	UsernameOwner(ctx context.Context, username string) (string, error)
	AddTipTotals(ctx context.Context, profileID string, amount float64) error
	// ListCreators returns onboarded creators, most supported first.
	ListCreators(ctx context.Context, q CreatorQuery) ([]*Profile, error)
}

// CreatorQuery filters the creator directory. Search matches name, username
// or bio case-insensitively; empty matches everyone.
type CreatorQuery struct {
	Search string
	Limit  int
}

// SubscriptionRepository is the data access interface for creator subscriptions.
type SubscriptionRepository interface {
	// CreatePending inserts a pending subscription. When the profile already
	// has one, the existing row is returned with created=false.
	CreatePending(ctx context.Context, sub *CreatorSubscription) (stored *CreatorSubscription, created bool, err error)
	GetPendingByProfile(ctx context.Context, profileID string) (*CreatorSubscription, error)
	GetByTransaction(ctx context.Context, transactionID string) (*CreatorSubscription, error)
	GetLatestByProfile(ctx context.Context, profileID string) (*CreatorSubscription, error)
	// Complete settles a subscription that is not yet completed. When the row
	// is already completed it is returned unchanged with applied=false.
	Complete(ctx context.Context, id string, c SubscriptionCompletion) (stored *CreatorSubscription, applied bool, err error)
	// MarkFailed binds the transaction and marks a pending subscription failed.
	MarkFailed(ctx context.Context, id, transactionID, method string) (bool, error)
}

// SignupRepository is the data access interface for anonymous-funnel signups.
type SignupRepository interface {
	// UpsertPayment writes verified payment state keyed by transaction id.
	// Returns applied=false when the stored row is terminal for this update.
	UpsertPayment(ctx context.Context, s *CreatorSignup) (applied bool, err error)
	GetByTransaction(ctx context.Context, transactionID string) (*CreatorSignup, error)
	UsernameTakenByOther(ctx context.Context, username, transactionID string) (bool, error)
	CompleteProfile(ctx context.Context, s *CreatorSignup) error
}

// TipRepository is the data access interface for tips.
type TipRepository interface {
	// Insert stores a tip; inserted=false when the transaction was already recorded.
	Insert(ctx context.Context, t *Tip) (inserted bool, err error)
	GetByTransaction(ctx context.Context, transactionID string) (*Tip, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Tip, error)
	UpdateStatus(ctx context.Context, transactionID string, status PaymentStatus) (bool, error)
}

// WithdrawalRepository is the data access interface for withdrawal requests.
type WithdrawalRepository interface {
	Create(ctx context.Context, w *WithdrawalRequest) error
	ListByProfile(ctx context.Context, profileID string) ([]*WithdrawalRequest, error)
	// SumOutstanding totals every request that has not been rejected.
	SumOutstanding(ctx context.Context, profileID string) (float64, error)
}

// IntentRepository is the data access interface for pending checkout intents.
type IntentRepository interface {
	Create(ctx context.Context, in *PendingIntent) error
	Get(ctx context.Context, id string) (*PendingIntent, error)
	// Resolve binds transactionID to an open intent. Returns false when the
	// intent was already resolved.
	Resolve(ctx context.Context, id, transactionID string) (bool, error)
}

// RepositoryRegistry provides access to repositories bound to one scope.
type RepositoryRegistry interface {
	Profiles() ProfileRepository
	Subscriptions() SubscriptionRepository
	Signups() SignupRepository
	Tips() TipRepository
	Withdrawals() WithdrawalRepository
	Intents() IntentRepository
}

// StoreFunc is a unit of work executed against a scoped repository registry.
type StoreFunc func(ctx context.Context, repos RepositoryRegistry) error

// ScopedStoreFactory hands out repositories scoped to one request. ForIdentity
// scopes row-level access to the given identity; AsService is for trusted
// server-side callers such as webhook processing.
type ScopedStoreFactory interface {
	ForIdentity(ctx context.Context, identityID string, fn StoreFunc) error
	AsService(ctx context.Context, fn StoreFunc) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
