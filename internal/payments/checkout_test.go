package payments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/external"
	"tipkoro/internal/types"
)

func TestCheckoutService_StartSignup_UsesServerPrice(t *testing.T) {
	h := newHarness(t)

	out, err := h.checkout.StartSignup(context.Background(), SignupCheckoutRequest{FullName: "Nusrat Jahan", Email: "n@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.PaymentURL)

	require.Len(t, h.gateway.checkouts, 1)
	req := h.gateway.checkouts[0]
	assert.Equal(t, 150.0, req.Amount)
	assert.Equal(t, "https://tipkoro.com/payment/success", req.SuccessURL)
	assert.Equal(t, "https://tipkoro.com/payment/cancel", req.CancelURL)
	assert.Equal(t, external.PurposeCreatorSignup, req.Purpose)
}

func TestCheckoutService_StartCreatorPromo_ResumesPendingSubscription(t *testing.T) {
	h := newHarness(t)
	p := h.store.PutProfile(types.Profile{
		UserID:           "user_a",
		Email:            "a@example.com",
		FirstName:        "Nusrat",
		LastName:         "Jahan",
		AccountType:      types.AccountTypeCreator,
		OnboardingStatus: types.OnboardingPayment,
	})
	ctx := context.Background()

	first, err := h.checkout.StartCreatorPromo(ctx, "user_a", &p)
	require.NoError(t, err)
	assert.False(t, first.Resumed)
	assert.NotEmpty(t, first.ReferenceID)

	second, err := h.checkout.StartCreatorPromo(ctx, "user_a", &p)
	require.NoError(t, err)
	assert.True(t, second.Resumed)

	subs := h.store.Subscriptions(p.ID)
	require.Len(t, subs, 1)
	assert.Equal(t, 10.0, subs[0].Amount)
	assert.Equal(t, types.PaymentPending, subs[0].PaymentStatus)

	intent, ok := h.store.Intent(first.ReferenceID)
	require.True(t, ok)
	assert.Equal(t, types.IntentCreatorSubscription, intent.Kind)
	assert.Equal(t, "user_a", intent.IdentityID)
	assert.Equal(t, testNow.Add(DefaultIntentTTL), intent.ExpiresAt)

	req := h.gateway.checkouts[0]
	assert.Equal(t, "https://tipkoro.com/payment/return?reference_id="+first.ReferenceID, req.SuccessURL)
	assert.Equal(t, first.ReferenceID, req.ReferenceID)
	assert.Equal(t, "Nusrat Jahan", req.PayerName)
	assert.Equal(t, 10.0, req.Amount)
}

func TestCheckoutService_StartTip_BelowMinimum(t *testing.T) {
	h := newHarness(t)
	h.seedCreator("rafi")

	_, err := h.checkout.StartTip(context.Background(), types.Actor{ID: "user_s", Type: types.ActorTypeUser}, "rafi", TipCheckoutRequest{Amount: 5})
	requireAppCode(t, err, types.ErrCodeValidationInvalidAmount)
	assert.Empty(t, h.gateway.checkouts)
}

func TestCheckoutService_StartTip_OnlyOnboardedCreators(t *testing.T) {
	h := newHarness(t)
	h.store.PutProfile(types.Profile{UserID: "user_half", Username: "half", AccountType: types.AccountTypeCreator, OnboardingStatus: types.OnboardingProfile})
	h.store.PutProfile(types.Profile{UserID: "user_sup", Username: "fan", AccountType: types.AccountTypeSupporter, OnboardingStatus: types.OnboardingCompleted})
	actor := types.Actor{ID: "user_s", Type: types.ActorTypeUser, Email: "s@example.com"}

	for _, username := range []string{"half", "fan", "nobody"} {
		_, err := h.checkout.StartTip(context.Background(), actor, username, TipCheckoutRequest{Amount: 50})
		requireAppCode(t, err, types.ErrCodeNotFoundCreator)
	}
	assert.Empty(t, h.store.Intents())
}

func TestCheckoutService_StartTip_RecordsIntent(t *testing.T) {
	h := newHarness(t)
	creator := h.seedCreator("rafi")
	supporter := h.store.PutProfile(types.Profile{UserID: "user_s", Email: "karim@example.com", FirstName: "Karim", LastName: "Uddin"})
	actor := types.Actor{ID: "user_s", Type: types.ActorTypeUser}

	out, err := h.checkout.StartTip(context.Background(), actor, "RAFI", TipCheckoutRequest{Amount: 100, Message: "  thanks  "})
	require.NoError(t, err)

	intent, ok := h.store.Intent(out.ReferenceID)
	require.True(t, ok)
	assert.Equal(t, types.IntentTip, intent.Kind)
	assert.Equal(t, creator.ID, intent.CreatorID)
	assert.Equal(t, supporter.ID, intent.ProfileID)
	assert.Equal(t, 100.0, intent.Amount)
	assert.Equal(t, "Karim Uddin", intent.Details.SupporterName)
	assert.Equal(t, "karim@example.com", intent.Details.SupporterEmail)
	assert.Equal(t, "thanks", intent.Details.Message)
	assert.Equal(t, "rafi", intent.Details.CreatorUsername)

	req := h.gateway.checkouts[0]
	assert.Equal(t, external.PurposeTip, req.Purpose)
	assert.Equal(t, "https://tipkoro.com/rafi", req.CancelURL)
}

func TestCheckoutService_StartTip_GatewayRejection(t *testing.T) {
	h := newHarness(t)
	h.seedCreator("rafi")
	h.gateway.checkoutErr = types.NewAppError(types.ErrCodeValidationGatewayRejected, "Failed to create payment link", nil)

	_, err := h.checkout.StartTip(context.Background(), types.Actor{ID: "user_s", Email: "s@example.com"}, "rafi", TipCheckoutRequest{Amount: 20})
	requireAppCode(t, err, types.ErrCodeValidationGatewayRejected)
}
