package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/config"
)

func TestNewClientRegistry_LocalReturnsStubs(t *testing.T) {
	for _, cfg := range []*config.Config{
		{Environment: "local"},
		{Environment: "dev", IsTestMode: true},
	} {
		reg, err := NewClientRegistry(cfg, discardLogger())
		require.NoError(t, err)

		assert.IsType(t, &StubPaymentGateway{}, reg.Gateway)
		assert.IsType(t, &StubAdminNotifier{}, reg.Admin)
		assert.IsType(t, &StubIdentityVerifier{}, reg.IdentityVerifier)
	}
}

func TestNewClientRegistry_ProductionClients(t *testing.T) {
	base := config.Config{Environment: "prod"}
	base.Server.APIExternalURL = "https://api.tipkoro.com"

	t.Run("queue sink", func(t *testing.T) {
		cfg := base
		cfg.AWS.AdminEventsQueue = "https://sqs/admin"
		cfg.Admin.WebhookURL = "https://ops.example/hook"

		reg, err := NewClientRegistry(&cfg, discardLogger(), WithSQSSender(&fakeSQS{}))
		require.NoError(t, err)
		assert.IsType(t, &RupantorClient{}, reg.Gateway)
		assert.IsType(t, &SQSAdminPublisher{}, reg.Admin)
		assert.IsType(t, &SvixVerifier{}, reg.IdentityVerifier)
	})

	t.Run("webhook sink", func(t *testing.T) {
		cfg := base
		cfg.Admin.WebhookURL = "https://ops.example/hook"

		reg, err := NewClientRegistry(&cfg, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &HTTPAdminNotifier{}, reg.Admin)
	})

	t.Run("no sink", func(t *testing.T) {
		cfg := base
		reg, err := NewClientRegistry(&cfg, discardLogger())
		require.NoError(t, err)
		assert.IsType(t, &NoopAdminNotifier{}, reg.Admin)
	})
}

func TestStubPaymentGateway_RoundTrip(t *testing.T) {
	g := NewStubPaymentGateway(discardLogger())

	session, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		PayerName: "A", PayerEmail: "a@b.co", Amount: 10,
		SuccessURL:  "https://tipkoro.test/payment/return?reference_id=ref-1",
		ReferenceID: "ref-1",
	})
	require.NoError(t, err)
	assert.Contains(t, session.PaymentURL, "transactionId=stub_ref-1")
	assert.Contains(t, session.PaymentURL, "&paymentMethod=bkash")

	res, err := g.VerifyTransaction(context.Background(), "stub_ref-1", VerificationExpectation{Amount: 10})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "ref-1", res.ReferenceID)
	assert.Equal(t, 10.0, res.Amount)
	assert.Empty(t, res.Purpose)

	res, err = g.VerifyTransaction(context.Background(), "stub_a_at_b.co", VerificationExpectation{})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Empty(t, res.ReferenceID)
	assert.Equal(t, PurposeCreatorSignup, res.Purpose)

	res, err = g.VerifyTransaction(context.Background(), "real-txn", VerificationExpectation{})
	require.NoError(t, err)
	assert.False(t, res.Verified)
}
