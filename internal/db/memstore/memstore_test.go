package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/types"
)

func TestStore_AsService_RollsBackOnError(t *testing.T) {
	s := New(nil)
	boom := errors.New("boom")

	err := s.AsService(context.Background(), func(ctx context.Context, repos types.RepositoryRegistry) error {
		_, err := repos.Profiles().CreateIfAbsent(ctx, &types.Profile{UserID: "user_1"})
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, ok := s.ProfileByUser("user_1")
	assert.False(t, ok, "profile written inside a failed scope must be discarded")
	assert.Equal(t, 1, s.ServiceCalls)
}

func TestStore_ForIdentity_RequiresIdentity(t *testing.T) {
	s := New(nil)
	called := false

	err := s.ForIdentity(context.Background(), "", func(context.Context, types.RepositoryRegistry) error {
		called = true
		return nil
	})

	assert.Equal(t, types.ErrCodeAuthTokenMissing, types.CodeOf(err))
	assert.False(t, called)
}

func TestStore_SignupUpsert_CompletedIsTerminal(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	upsert := func(status types.PaymentStatus) bool {
		var applied bool
		require.NoError(t, s.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
			var err error
			applied, err = repos.Signups().UpsertPayment(ctx, &types.CreatorSignup{
				TransactionID: "t1", PaymentStatus: status, Amount: 150,
			})
			return err
		}))
		return applied
	}

	assert.True(t, upsert(types.PaymentPending))
	assert.True(t, upsert(types.PaymentCompleted))
	assert.False(t, upsert(types.PaymentFailed))
	assert.False(t, upsert(types.PaymentCompleted))

	row, ok := s.Signup("t1")
	require.True(t, ok)
	assert.Equal(t, types.PaymentCompleted, row.PaymentStatus)
	assert.Equal(t, 1, s.SignupCount())
}

func TestStore_CreatePending_ReusesOpenSubscription(t *testing.T) {
	s := New(nil)
	p := s.PutProfile(types.Profile{UserID: "user_1"})
	ctx := context.Background()

	var first, second *types.CreatorSubscription
	var created bool
	require.NoError(t, s.ForIdentity(ctx, "user_1", func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		first, _, err = repos.Subscriptions().CreatePending(ctx, &types.CreatorSubscription{ProfileID: p.ID, Amount: 10})
		if err != nil {
			return err
		}
		second, created, err = repos.Subscriptions().CreatePending(ctx, &types.CreatorSubscription{ProfileID: p.ID, Amount: 10})
		return err
	}))

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.Subscriptions(p.ID), 1)
}

func TestStore_TipInsert_UniqueTransaction(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	var inserted []bool
	require.NoError(t, s.AsService(ctx, func(ctx context.Context, repos types.RepositoryRegistry) error {
		for range 2 {
			ok, err := repos.Tips().Insert(ctx, &types.Tip{TransactionID: "t9", CreatorID: "c1", Amount: 50})
			if err != nil {
				return err
			}
			inserted = append(inserted, ok)
		}
		return nil
	}))

	assert.Equal(t, []bool{true, false}, inserted)
	assert.Len(t, s.Tips(), 1)
}

func TestStore_UpsertFromIdentity_UsernameConflict(t *testing.T) {
	s := New(nil)
	s.PutProfile(types.Profile{UserID: "user_1", Username: "Rafi"})

	err := s.AsService(context.Background(), func(ctx context.Context, repos types.RepositoryRegistry) error {
		_, err := repos.Profiles().UpsertFromIdentity(ctx, &types.Profile{UserID: "user_2", Username: "rafi"})
		return err
	})

	assert.Equal(t, types.ErrCodeConflictUsernameTaken, types.CodeOf(err))
	_, ok := s.ProfileByUser("user_2")
	assert.False(t, ok)
}

func TestStore_ListCreators_FiltersAndOrders(t *testing.T) {
	s := New(nil)
	creator := func(user, username string, supporters int, bio string) {
		s.PutProfile(types.Profile{UserID: user, Username: username, Bio: bio, TotalSupporters: supporters,
			AccountType: types.AccountTypeCreator, OnboardingStatus: types.OnboardingCompleted})
	}
	creator("u1", "bina", 4, "watercolour comics")
	creator("u2", "arif", 4, "")
	creator("u3", "mitu", 12, "podcast")
	s.PutProfile(types.Profile{UserID: "u4", Username: "draft", TotalSupporters: 99,
		AccountType: types.AccountTypeCreator, OnboardingStatus: types.OnboardingProfile})
	s.PutProfile(types.Profile{UserID: "u5", Username: "fan", AccountType: types.AccountTypeSupporter,
		OnboardingStatus: types.OnboardingCompleted})

	var all, comics []*types.Profile
	err := s.AsService(context.Background(), func(ctx context.Context, repos types.RepositoryRegistry) error {
		var err error
		if all, err = repos.Profiles().ListCreators(ctx, types.CreatorQuery{}); err != nil {
			return err
		}
		comics, err = repos.Profiles().ListCreators(ctx, types.CreatorQuery{Search: "COMICS"})
		return err
	})
	require.NoError(t, err)

	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Username)
	}
	assert.Equal(t, []string{"mitu", "arif", "bina"}, names)
	require.Len(t, comics, 1)
	assert.Equal(t, "bina", comics[0].Username)
}
