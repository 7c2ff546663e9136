package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tipkoro/internal/types"
)

func notFoundProfile() error {
	return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
}

func usernameTaken() error {
	return types.NewAppError(types.ErrCodeConflictUsernameTaken, "username already taken", nil)
}

// --- profiles ---

type profileRepo struct{ s *Store }

func (r profileRepo) find(match func(types.Profile) bool) (*types.Profile, bool) {
	for _, p := range r.s.profiles {
		if match(p) {
			cp := p
			return &cp, true
		}
	}
	return nil, false
}

func (r profileRepo) usernameHeldByOther(username, userID string) bool {
	if username == "" {
		return false
	}
	_, ok := r.find(func(p types.Profile) bool { return p.Username == username && p.UserID != userID })
	return ok
}

func (r profileRepo) GetByID(_ context.Context, id string) (*types.Profile, error) {
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, notFoundProfile()
	}
	return &p, nil
}

func (r profileRepo) GetByUserID(_ context.Context, userID string) (*types.Profile, error) {
	if p, ok := r.find(func(p types.Profile) bool { return p.UserID == userID }); ok {
		return p, nil
	}
	return nil, notFoundProfile()
}

func (r profileRepo) GetByUsername(_ context.Context, username string) (*types.Profile, error) {
	u := types.NormalizeUsername(username)
	if p, ok := r.find(func(p types.Profile) bool { return u != "" && p.Username == u }); ok {
		return p, nil
	}
	return nil, notFoundProfile()
}

func (r profileRepo) CreateIfAbsent(ctx context.Context, p *types.Profile) (*types.Profile, error) {
	if existing, err := r.GetByUserID(ctx, p.UserID); err == nil {
		return existing, nil
	}
	row := *p
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = r.s.now()
	row.UpdatedAt = row.CreatedAt
	r.s.profiles[row.ID] = row
	return &row, nil
}

func (r profileRepo) UpsertFromIdentity(ctx context.Context, p *types.Profile) (*types.Profile, error) {
	username := types.NormalizeUsername(p.Username)
	existing, err := r.GetByUserID(ctx, p.UserID)
	if err == nil {
		row := *existing
		row.Email, row.FirstName, row.LastName, row.AvatarURL = p.Email, p.FirstName, p.LastName, p.AvatarURL
		if row.Username == "" && username != "" {
			if r.usernameHeldByOther(username, p.UserID) {
				return nil, usernameTaken()
			}
			row.Username = username
		}
		row.UpdatedAt = r.s.now()
		r.s.profiles[row.ID] = row
		return &row, nil
	}
	if r.usernameHeldByOther(username, p.UserID) {
		return nil, usernameTaken()
	}
	row := *p
	row.Username = username
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CreatedAt = r.s.now()
	row.UpdatedAt = row.CreatedAt
	r.s.profiles[row.ID] = row
	return &row, nil
}

func (r profileRepo) UpdateIdentityFields(ctx context.Context, userID string, upd types.IdentityUpdate) error {
	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	p.Email, p.FirstName, p.LastName, p.AvatarURL = upd.Email, upd.FirstName, upd.LastName, upd.AvatarURL
	p.UpdatedAt = r.s.now()
	r.s.profiles[p.ID] = *p
	return nil
}

func (r profileRepo) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return false, nil
	}
	delete(r.s.profiles, p.ID)
	return true, nil
}

func (r profileRepo) Update(ctx context.Context, userID string, upd types.ProfileUpdate) (*types.Profile, error) {
	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if upd.Username != nil {
		u := types.NormalizeUsername(*upd.Username)
		if r.usernameHeldByOther(u, userID) {
			return nil, usernameTaken()
		}
		p.Username = u
	}
	set(&p.FirstName, upd.FirstName)
	set(&p.LastName, upd.LastName)
	set(&p.Bio, upd.Bio)
	set(&p.AvatarURL, upd.AvatarURL)
	set(&p.Twitter, upd.Twitter)
	set(&p.Instagram, upd.Instagram)
	set(&p.Youtube, upd.Youtube)
	set(&p.Facebook, upd.Facebook)
	set(&p.OtherLink, upd.OtherLink)
	p.UpdatedAt = r.s.now()
	r.s.profiles[p.ID] = *p
	return p, nil
}

func (r profileRepo) SetOnboarding(ctx context.Context, userID string, accountType types.AccountType, status types.OnboardingStatus) (*types.Profile, error) {
	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accountType != "" {
		p.AccountType = accountType
	}
	p.OnboardingStatus = status
	p.UpdatedAt = r.s.now()
	r.s.profiles[p.ID] = *p
	return p, nil
}

func (r profileRepo) AdvanceOnboarding(_ context.Context, profileID string, from, to types.OnboardingStatus) (bool, error) {
	p, ok := r.s.profiles[profileID]
	if !ok || p.OnboardingStatus != from {
		return false, nil
	}
	p.OnboardingStatus = to
	p.UpdatedAt = r.s.now()
	r.s.profiles[profileID] = p
	return true, nil
}

func (r profileRepo) UsernameOwner(_ context.Context, username string) (string, error) {
	u := types.NormalizeUsername(username)
	if p, ok := r.find(func(p types.Profile) bool { return u != "" && p.Username == u }); ok {
		return p.UserID, nil
	}
	return "", nil
}

func (r profileRepo) AddTipTotals(_ context.Context, profileID string, amount float64) error {
	p, ok := r.s.profiles[profileID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundCreator, "creator not found", nil)
	}
	p.TotalReceived += amount
	p.TotalSupporters++
	r.s.profiles[profileID] = p
	return nil
}

func (r profileRepo) ListCreators(_ context.Context, q types.CreatorQuery) ([]*types.Profile, error) {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := []*types.Profile{}
	for _, p := range r.s.profiles {
		if !p.IsCreator() || p.OnboardingStatus != types.OnboardingCompleted || p.Username == "" {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.FirstName+" "+p.LastName), needle) &&
			!strings.Contains(strings.ToLower(p.Username), needle) &&
			!strings.Contains(strings.ToLower(p.Bio), needle) {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSupporters != out[j].TotalSupporters {
			return out[i].TotalSupporters > out[j].TotalSupporters
		}
		return out[i].Username < out[j].Username
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- subscriptions ---

type subscriptionRepo struct{ s *Store }

func (r subscriptionRepo) first(match func(types.CreatorSubscription) bool) *types.CreatorSubscription {
	var best *types.CreatorSubscription
	for _, sub := range r.s.subs {
		if !match(sub) {
			continue
		}
		if best == nil || sub.CreatedAt.After(best.CreatedAt) {
			cp := sub
			best = &cp
		}
	}
	return best
}

func (r subscriptionRepo) CreatePending(ctx context.Context, sub *types.CreatorSubscription) (*types.CreatorSubscription, bool, error) {
	if existing, _ := r.GetPendingByProfile(ctx, sub.ProfileID); existing != nil {
		return existing, false, nil
	}
	row := *sub
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Currency == "" {
		row.Currency = types.DefaultCurrency
	}
	row.PaymentStatus = types.PaymentPending
	row.CreatedAt = r.s.now()
	row.UpdatedAt = row.CreatedAt
	r.s.subs[row.ID] = row
	return &row, true, nil
}

func (r subscriptionRepo) GetPendingByProfile(_ context.Context, profileID string) (*types.CreatorSubscription, error) {
	return r.first(func(s types.CreatorSubscription) bool {
		return s.ProfileID == profileID && s.PaymentStatus == types.PaymentPending
	}), nil
}

func (r subscriptionRepo) GetByTransaction(_ context.Context, transactionID string) (*types.CreatorSubscription, error) {
	return r.first(func(s types.CreatorSubscription) bool {
		return transactionID != "" && s.TransactionID == transactionID
	}), nil
}

func (r subscriptionRepo) GetLatestByProfile(_ context.Context, profileID string) (*types.CreatorSubscription, error) {
	return r.first(func(s types.CreatorSubscription) bool { return s.ProfileID == profileID }), nil
}

func (r subscriptionRepo) Complete(_ context.Context, id string, c types.SubscriptionCompletion) (*types.CreatorSubscription, bool, error) {
	sub, ok := r.s.subs[id]
	if !ok {
		return nil, false, types.NewAppError(types.ErrCodeNotFoundIntent, "subscription not found", nil)
	}
	if sub.PaymentStatus == types.PaymentCompleted {
		return &sub, false, nil
	}
	for _, other := range r.s.subs {
		if other.ID != id && other.TransactionID == c.TransactionID {
			return nil, false, types.NewAppError(types.ErrCodeConflictIntentResolved, "transaction already settled another subscription", nil)
		}
	}
	sub.PaymentStatus = types.PaymentCompleted
	sub.TransactionID = c.TransactionID
	if c.PaymentMethod != "" {
		sub.PaymentMethod = c.PaymentMethod
	}
	sub.Amount = c.Amount
	sub.Currency = c.Currency
	if sub.Currency == "" {
		sub.Currency = types.DefaultCurrency
	}
	sub.Promo = true
	signup, start, until := c.SignupDate, c.BillingStart, c.ActiveUntil
	sub.SignupDate, sub.BillingStart, sub.ActiveUntil = &signup, &start, &until
	sub.UpdatedAt = r.s.now()
	r.s.subs[id] = sub
	return &sub, true, nil
}

func (r subscriptionRepo) MarkFailed(_ context.Context, id, transactionID, method string) (bool, error) {
	sub, ok := r.s.subs[id]
	if !ok || sub.PaymentStatus != types.PaymentPending {
		return false, nil
	}
	sub.PaymentStatus = types.PaymentFailed
	if sub.TransactionID == "" {
		sub.TransactionID = transactionID
	}
	if method != "" {
		sub.PaymentMethod = method
	}
	sub.UpdatedAt = r.s.now()
	r.s.subs[id] = sub
	return true, nil
}

// --- signups ---

type signupRepo struct{ s *Store }

func (r signupRepo) UpsertPayment(_ context.Context, c *types.CreatorSignup) (bool, error) {
	existing, ok := r.s.signups[c.TransactionID]
	if !ok {
		row := *c
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.Currency == "" {
			row.Currency = types.DefaultCurrency
		}
		row.CreatedAt = r.s.now()
		row.UpdatedAt = row.CreatedAt
		r.s.signups[row.TransactionID] = row
		c.ID = row.ID
		return true, nil
	}
	if !existing.PaymentStatus.CanTransitionTo(c.PaymentStatus) {
		return false, nil
	}
	existing.PaymentStatus = c.PaymentStatus
	if c.PaymentMethod != "" {
		existing.PaymentMethod = c.PaymentMethod
	}
	existing.Amount = c.Amount
	if c.Currency != "" {
		existing.Currency = c.Currency
	}
	if c.Email != "" {
		existing.Email = c.Email
	}
	existing.UpdatedAt = r.s.now()
	r.s.signups[c.TransactionID] = existing
	c.ID = existing.ID
	return true, nil
}

func (r signupRepo) GetByTransaction(_ context.Context, transactionID string) (*types.CreatorSignup, error) {
	c, ok := r.s.signups[transactionID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r signupRepo) UsernameTakenByOther(_ context.Context, username, transactionID string) (bool, error) {
	u := types.NormalizeUsername(username)
	for _, c := range r.s.signups {
		if c.Username == u && c.TransactionID != transactionID {
			return true, nil
		}
	}
	for _, p := range r.s.profiles {
		if p.Username == u {
			return true, nil
		}
	}
	return false, nil
}

func (r signupRepo) CompleteProfile(_ context.Context, c *types.CreatorSignup) error {
	existing, ok := r.s.signups[c.TransactionID]
	if !ok || existing.PaymentStatus != types.PaymentCompleted {
		return types.NewAppError(types.ErrCodeValidationPaymentUnverified, "payment not verified", nil)
	}
	u := types.NormalizeUsername(c.Username)
	for _, other := range r.s.signups {
		if other.TransactionID != c.TransactionID && other.Username == u {
			return usernameTaken()
		}
	}
	row := *c
	row.ID = existing.ID
	row.Username = u
	row.PaymentStatus = existing.PaymentStatus
	row.PaymentMethod = existing.PaymentMethod
	row.Amount = existing.Amount
	row.Currency = existing.Currency
	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = r.s.now()
	r.s.signups[c.TransactionID] = row
	return nil
}

// --- tips ---

type tipRepo struct{ s *Store }

func (r tipRepo) Insert(_ context.Context, t *types.Tip) (bool, error) {
	if _, ok := r.s.tips[t.TransactionID]; ok {
		return false, nil
	}
	row := *t
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Currency == "" {
		row.Currency = types.DefaultCurrency
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.s.now()
	}
	r.s.tips[row.TransactionID] = row
	t.ID = row.ID
	return true, nil
}

func (r tipRepo) GetByTransaction(_ context.Context, transactionID string) (*types.Tip, error) {
	t, ok := r.s.tips[transactionID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r tipRepo) ListByCreator(_ context.Context, creatorID string, limit int) ([]*types.Tip, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	var out []*types.Tip
	for _, t := range r.s.tips {
		if t.CreatorID == creatorID {
			cp := t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r tipRepo) UpdateStatus(_ context.Context, transactionID string, status types.PaymentStatus) (bool, error) {
	t, ok := r.s.tips[transactionID]
	if !ok || !t.PaymentStatus.CanTransitionTo(status) {
		return false, nil
	}
	t.PaymentStatus = status
	r.s.tips[transactionID] = t
	return true, nil
}

// --- withdrawals ---

type withdrawalRepo struct{ s *Store }

func (r withdrawalRepo) Create(_ context.Context, w *types.WithdrawalRequest) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Currency == "" {
		w.Currency = types.DefaultCurrency
	}
	if w.Status == "" {
		w.Status = types.WithdrawalPending
	}
	w.CreatedAt = r.s.now()
	w.UpdatedAt = w.CreatedAt
	r.s.withdrawals[w.ID] = *w
	return nil
}

func (r withdrawalRepo) ListByProfile(_ context.Context, profileID string) ([]*types.WithdrawalRequest, error) {
	var out []*types.WithdrawalRequest
	for _, w := range r.s.withdrawals {
		if w.ProfileID == profileID {
			cp := w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r withdrawalRepo) SumOutstanding(_ context.Context, profileID string) (float64, error) {
	var sum float64
	for _, w := range r.s.withdrawals {
		if w.ProfileID == profileID && w.Status != types.WithdrawalRejected {
			sum += w.Amount
		}
	}
	return sum, nil
}

// --- intents ---

type intentRepo struct{ s *Store }

func (r intentRepo) Create(_ context.Context, in *types.PendingIntent) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Currency == "" {
		in.Currency = types.DefaultCurrency
	}
	in.Status = types.IntentOpen
	in.CreatedAt = r.s.now()
	r.s.intents[in.ID] = *in
	return nil
}

func (r intentRepo) Get(_ context.Context, id string) (*types.PendingIntent, error) {
	in, ok := r.s.intents[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundIntent, "pending intent not found", nil)
	}
	return &in, nil
}

func (r intentRepo) Resolve(_ context.Context, id, transactionID string) (bool, error) {
	in, ok := r.s.intents[id]
	if !ok || in.Status != types.IntentOpen {
		return false, nil
	}
	for _, other := range r.s.intents {
		if other.ID != id && other.TransactionID == transactionID {
			return false, types.NewAppError(types.ErrCodeConflictIntentResolved, "transaction already resolved another intent", nil)
		}
	}
	now := r.s.now()
	in.Status = types.IntentResolved
	in.TransactionID = transactionID
	in.ResolvedAt = &now
	r.s.intents[id] = in
	return true, nil
}

var (
	_ types.ProfileRepository      = profileRepo{}
	_ types.SubscriptionRepository = subscriptionRepo{}
	_ types.SignupRepository       = signupRepo{}
	_ types.TipRepository          = tipRepo{}
	_ types.WithdrawalRepository   = withdrawalRepo{}
	_ types.IntentRepository       = intentRepo{}
)
