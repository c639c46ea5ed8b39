package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
)

const testWebhookSecret = "whsec_test_secret"

func newTestGateway() *StripeGateway {
	return NewStripeGateway(config.PaymentConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Breaker: config.BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 3,
		},
	}, zap.NewNop())
}

func sign(payload string) (string, []byte) {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testWebhookSecret,
	})
	return signed.Header, signed.Payload
}

func TestVerifyAndParseWebhook_CheckoutCompleted(t *testing.T) {
	g := newTestGateway()

	header, body := sign(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"client_reference_id": "42",
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"plan": "premium"}
		}}
	}`)

	event, err := g.VerifyAndParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, int64(42), event.UserID)
	assert.Equal(t, "premium", event.Plan)
	assert.Equal(t, "cus_1", event.CustomerID)
	assert.Equal(t, "sub_1", event.SubscriptionID)
}

func TestVerifyAndParseWebhook_SubscriptionDeleted(t *testing.T) {
	g := newTestGateway()

	header, body := sign(`{
		"id": "evt_2",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_9", "object": "subscription", "customer": "cus_9"}}
	}`)

	event, err := g.VerifyAndParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionDeleted, event.Type)
	assert.Equal(t, "sub_9", event.SubscriptionID)
	assert.Equal(t, "cus_9", event.CustomerID)
}

func TestVerifyAndParseWebhook_BadSignature(t *testing.T) {
	g := newTestGateway()

	_, body := sign(`{"id": "evt_3", "object": "event", "type": "invoice.paid", "data": {"object": {}}}`)

	_, err := g.VerifyAndParseWebhook(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestVerifyAndParseWebhook_UnknownEventPassesThrough(t *testing.T) {
	g := newTestGateway()

	header, body := sign(`{"id": "evt_4", "object": "event", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`)

	event, err := g.VerifyAndParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", event.Type)
	assert.Zero(t, event.UserID)
}

func TestStripeGateway_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := newTestGateway()
	boom := errors.New("connection reset")

	calls := 0
	failing := func() (any, error) {
		calls++
		return nil, boom
	}

	for i := 0; i < 3; i++ {
		_, err := g.execute("probe", failing)
		assert.ErrorIs(t, err, ErrGateway)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, gobreaker.StateOpen, g.breaker.State())

	_, err := g.execute("probe", failing)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Contains(t, err.Error(), gobreaker.ErrOpenState.Error())
	assert.Equal(t, 3, calls, "open breaker must not reach the remote")
}
