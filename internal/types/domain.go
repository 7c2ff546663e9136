package types

import "time"

// Profile is the public identity of a user. UserID is the identity
// provider's subject and is unique.
type Profile struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Email            string           `json:"email"`
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	Username         string           `json:"username,omitempty"`
	Bio              string           `json:"bio,omitempty"`
	AvatarURL        string           `json:"avatar_url,omitempty"`
	AccountType      AccountType      `json:"account_type,omitempty"`
	OnboardingStatus OnboardingStatus `json:"onboarding_status"`
	Twitter          string           `json:"twitter,omitempty"`
	Instagram        string           `json:"instagram,omitempty"`
	Youtube          string           `json:"youtube,omitempty"`
	Facebook         string           `json:"facebook,omitempty"`
	OtherLink        string           `json:"other_link,omitempty"`
	IsVerified       bool             `json:"is_verified"`
	TotalReceived    float64          `json:"total_received"`
	TotalSupporters  int              `json:"total_supporters"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsCreator reports whether the profile chose the creator account type.
func (p *Profile) IsCreator() bool {
	return p.AccountType == AccountTypeCreator
}

// PublicCreator is the subset of a creator profile shown on public pages.
type PublicCreator struct {
	Username        string  `json:"username"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Bio             string  `json:"bio,omitempty"`
	AvatarURL       string  `json:"avatar_url,omitempty"`
	Twitter         string  `json:"twitter,omitempty"`
	Instagram       string  `json:"instagram,omitempty"`
	Youtube         string  `json:"youtube,omitempty"`
	Facebook        string  `json:"facebook,omitempty"`
	OtherLink       string  `json:"other_link,omitempty"`
	IsVerified      bool    `json:"is_verified"`
	TotalSupporters int     `json:"total_supporters"`
	TotalReceived   float64 `json:"total_received"`
}

// Public projects a profile onto its public fields.
func (p *Profile) Public() PublicCreator {
	return PublicCreator{
		Username:        p.Username,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Bio:             p.Bio,
		AvatarURL:       p.AvatarURL,
		Twitter:         p.Twitter,
		Instagram:       p.Instagram,
		Youtube:         p.Youtube,
		Facebook:        p.Facebook,
		OtherLink:       p.OtherLink,
		IsVerified:      p.IsVerified,
		TotalSupporters: p.TotalSupporters,
		TotalReceived:   p.TotalReceived,
	}
}

// ProfileUpdate carries owner-editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Twitter   *string `json:"twitter,omitempty"`
	Instagram *string `json:"instagram,omitempty"`
	Youtube   *string `json:"youtube,omitempty"`
	Facebook  *string `json:"facebook,omitempty"`
	OtherLink *string `json:"other_link,omitempty"`
}

// IdentityUpdate carries fields owned by the identity provider.
type IdentityUpdate struct {
	Email     string
	FirstName string
	LastName  string
	AvatarURL string
}

// CreatorSubscription is a creator's paid activation. At most one pending
// subscription exists per profile.
type CreatorSubscription struct {
	ID            string        `json:"id"`
	ProfileID     string        `json:"profile_id"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PayoutMethod  PayoutMethod  `json:"payout_method,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Promo         bool          `json:"promo"`
	SignupDate    *time.Time    `json:"signup_date,omitempty"`
	BillingStart  *time.Time    `json:"billing_start,omitempty"`
	ActiveUntil   *time.Time    `json:"active_until,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SubscriptionCompletion is the verified data written when a pending
// subscription is settled.
type SubscriptionCompletion struct {
	TransactionID string
	PaymentMethod string
	Amount        float64
	Currency      string
	SignupDate    time.Time
	BillingStart  time.Time
	ActiveUntil   time.Time
}

// CreatorSignup is a signup made through the anonymous checkout funnel,
// keyed by the gateway transaction id.
type CreatorSignup struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transaction_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Amount        float64       `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email,omitempty"`
	Username      string        `json:"username,omitempty"`
	FirstName     string        `json:"first_name,omitempty"`
	LastName      string        `json:"last_name,omitempty"`
	Bio           string        `json:"bio,omitempty"`
	Category      string        `json:"category,omitempty"`
	Twitter       string        `json:"twitter,omitempty"`
	Instagram     string        `json:"instagram,omitempty"`
	Youtube       string        `json:"youtube,omitempty"`
	OtherLink     string        `json:"other_link,omitempty"`
	PayoutMethod  PayoutMethod  `json:"payout_method,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Promo         bool          `json:"promo"`
	SignupDate    *time.Time    `json:"signup_date,omitempty"`
	ActiveUntil   *time.Time    `json:"active_until,omitempty"`
	BillingStart  *time.Time    `json:"billing_start,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Tip is a settled payment from a supporter to a creator.
type Tip struct {
	ID             string        `json:"id"`
	CreatorID      string        `json:"creator_id"`
	SupporterID    string        `json:"supporter_id,omitempty"`
	SupporterName  string        `json:"supporter_name"`
	SupporterEmail string        `json:"supporter_email,omitempty"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Message        string        `json:"message,omitempty"`
	IsAnonymous    bool          `json:"is_anonymous"`
	PaymentMethod  string        `json:"payment_method,omitempty"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	TransactionID  string        `json:"transaction_id"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Redacted hides the supporter's identity for anonymous tips.
func (t Tip) Redacted() Tip {
	if t.IsAnonymous {
		t.SupporterName = "Anonymous"
		t.SupporterEmail = ""
		t.SupporterID = ""
	}
	return t
}

// WithdrawalRequest is a creator's request to be paid out.
type WithdrawalRequest struct {
	ID            string           `json:"id"`
	ProfileID     string           `json:"profile_id"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	PayoutMethod  PayoutMethod     `json:"payout_method"`
	PayoutDetails PayoutDetails    `json:"payout_details"`
	Status        WithdrawalStatus `json:"status"`
	Notes         string           `json:"notes,omitempty"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// PayoutDetails is stored as JSONB alongside a withdrawal request.
type PayoutDetails struct {
	Number string `json:"number"`
}

// PendingIntent is the server-side record of a checkout the caller started.
// Its ID travels to the gateway as the reference id and back on the return URL.
type PendingIntent struct {
	ID            string       `json:"id"`
	Kind          IntentKind   `json:"kind"`
	IdentityID    string       `json:"identity_id"`
	ProfileID     string       `json:"profile_id,omitempty"`
	CreatorID     string       `json:"creator_id,omitempty"`
	Amount        float64      `json:"amount"`
	Currency      string       `json:"currency"`
	Details       TipDetails   `json:"details"`
	Status        IntentStatus `json:"status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     time.Time    `json:"expires_at"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
}

// TipDetails holds what a supporter entered before checkout. Stored as JSONB.
type TipDetails struct {
	SupporterName  string `json:"supporter_name,omitempty"`
	SupporterEmail string `json:"supporter_email,omitempty"`
	Message        string `json:"message,omitempty"`
	IsAnonymous    bool   `json:"is_anonymous,omitempty"`
	// CreatorUsername lets the return page link back to the creator.
	CreatorUsername string `json:"creator_username,omitempty"`
}

// VerificationResult is the normalized answer of the payment gateway for one
// transaction. Verified is true only when Status is completed.
type VerificationResult struct {
	Verified      bool          `json:"verified"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id"`
	Amount        float64       `json:"amount,omitempty"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Email         string        `json:"email,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	ReferenceID   string        `json:"reference_id,omitempty"`
	// Purpose is the checkout kind echoed back in meta_data.signup_type.
	Purpose string `json:"purpose,omitempty"`
}

// AdminEvent is delivered to the operator sink on payment milestones.
type AdminEvent struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
