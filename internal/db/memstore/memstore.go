// Package memstore is an in-memory implementation of the repository
// interfaces for service tests. It mirrors the SQL guards of package db:
// the monotonic payment upserts, the one-pending-subscription index, the
// unique usernames and transaction ids. Each scope call runs under one lock
// and is rolled back when fn returns an error.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tipkoro/internal/types"
)

// Store holds every table in memory.
type Store struct {
	mu sync.Mutex

	profiles    map[string]types.Profile
	subs        map[string]types.CreatorSubscription
	signups     map[string]types.CreatorSignup
	tips        map[string]types.Tip
	withdrawals map[string]types.WithdrawalRequest
	intents     map[string]types.PendingIntent

	now func() time.Time

	// Err, when set, is returned by every scope call without running fn.
	Err error

	ServiceCalls  int
	IdentityCalls []string
}

// New returns an empty Store using clock for timestamps.
func New(clock types.Clock) *Store {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Store{
		profiles:    map[string]types.Profile{},
		subs:        map[string]types.CreatorSubscription{},
		signups:     map[string]types.CreatorSignup{},
		tips:        map[string]types.Tip{},
		withdrawals: map[string]types.WithdrawalRequest{},
		intents:     map[string]types.PendingIntent{},
		now:         clock.Now,
	}
}

type snapshot struct {
	profiles    map[string]types.Profile
	subs        map[string]types.CreatorSubscription
	signups     map[string]types.CreatorSignup
	tips        map[string]types.Tip
	withdrawals map[string]types.WithdrawalRequest
	intents     map[string]types.PendingIntent
}

func clone[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		profiles:    clone(s.profiles),
		subs:        clone(s.subs),
		signups:     clone(s.signups),
		tips:        clone(s.tips),
		withdrawals: clone(s.withdrawals),
		intents:     clone(s.intents),
	}
}

func (s *Store) restore(snap snapshot) {
	s.profiles = snap.profiles
	s.subs = snap.subs
	s.signups = snap.signups
	s.tips = snap.tips
	s.withdrawals = snap.withdrawals
	s.intents = snap.intents
}

func (s *Store) run(ctx context.Context, fn types.StoreFunc) error {
	if s.Err != nil {
		return s.Err
	}
	snap := s.snapshot()
	if err := fn(ctx, registry{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ForIdentity implements types.ScopedStoreFactory. Row-level security is not
// emulated; callers' own ownership checks are what tests observe.
func (s *Store) ForIdentity(ctx context.Context, identityID string, fn types.StoreFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identityID == "" {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}
	s.IdentityCalls = append(s.IdentityCalls, identityID)
	return s.run(ctx, fn)
}

// AsService implements types.ScopedStoreFactory.
func (s *Store) AsService(ctx context.Context, fn types.StoreFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ServiceCalls++
	return s.run(ctx, fn)
}

type registry struct{ s *Store }

func (r registry) Profiles() types.ProfileRepository           { return profileRepo(r) }
func (r registry) Subscriptions() types.SubscriptionRepository { return subscriptionRepo(r) }
func (r registry) Signups() types.SignupRepository             { return signupRepo(r) }
func (r registry) Tips() types.TipRepository                   { return tipRepo(r) }
func (r registry) Withdrawals() types.WithdrawalRepository     { return withdrawalRepo(r) }
func (r registry) Intents() types.IntentRepository             { return intentRepo(r) }

// Seeding and inspection helpers. They take the lock, so they must not be
// called from inside a scope function.

// PutProfile stores p, assigning an id and timestamps when missing.
func (s *Store) PutProfile(p types.Profile) types.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	p.Username = types.NormalizeUsername(p.Username)
	s.profiles[p.ID] = p
	return p
}

// PutSubscription stores sub, assigning an id when missing.
func (s *Store) PutSubscription(sub types.CreatorSubscription) types.CreatorSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
		sub.UpdatedAt = sub.CreatedAt
	}
	s.subs[sub.ID] = sub
	return sub
}

// PutSignup stores a signup keyed by its transaction id.
func (s *Store) PutSignup(c types.CreatorSignup) types.CreatorSignup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.signups[c.TransactionID] = c
	return c
}

// PutTip stores a tip keyed by its transaction id.
func (s *Store) PutTip(t types.Tip) types.Tip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.tips[t.TransactionID] = t
	return t
}

// PutIntent stores a pending intent.
func (s *Store) PutIntent(in types.PendingIntent) types.PendingIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = types.IntentOpen
	}
	s.intents[in.ID] = in
	return in
}

// PutWithdrawal stores a withdrawal request.
func (s *Store) PutWithdrawal(w types.WithdrawalRequest) types.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	s.withdrawals[w.ID] = w
	return w
}

// Profile returns a copy of the profile with the given id.
func (s *Store) Profile(id string) (types.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	return p, ok
}

// ProfileByUser returns a copy of the profile owned by userID.
func (s *Store) ProfileByUser(userID string) (types.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == userID {
			return p, true
		}
	}
	return types.Profile{}, false
}

// Subscription returns a copy of the subscription with the given id.
func (s *Store) Subscription(id string) (types.CreatorSubscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// Subscriptions returns every subscription of a profile, oldest first.
func (s *Store) Subscriptions(profileID string) []types.CreatorSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CreatorSubscription
	for _, sub := range s.subs {
		if sub.ProfileID == profileID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Signup returns a copy of the signup for transactionID.
func (s *Store) Signup(transactionID string) (types.CreatorSignup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.signups[transactionID]
	return c, ok
}

// SignupCount returns the number of stored signups.
func (s *Store) SignupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signups)
}

// Tips returns every stored tip.
func (s *Store) Tips() []types.Tip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Tip, 0, len(s.tips))
	for _, t := range s.tips {
		out = append(out, t)
	}
	return out
}

// Intent returns a copy of the intent with the given id.
func (s *Store) Intent(id string) (types.PendingIntent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	return in, ok
}

// Intents returns every stored intent.
func (s *Store) Intents() []types.PendingIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PendingIntent, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, in)
	}
	return out
}

// Withdrawals returns every stored withdrawal request.
func (s *Store) Withdrawals() []types.WithdrawalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.WithdrawalRequest, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		out = append(out, w)
	}
	return out
}

var _ types.ScopedStoreFactory = (*Store)(nil)
