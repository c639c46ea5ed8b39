package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
)

const metadataPlan = "plan"

// StripeGateway 基于 Stripe 的支付平台实现，所有远程调用经过熔断器
type StripeGateway struct {
	webhookSecret string
	breaker       *gobreaker.CircuitBreaker[any]
	logger        *zap.Logger
}

func NewStripeGateway(cfg config.PaymentConfig, logger *zap.Logger) *StripeGateway {
	stripe.Key = cfg.SecretKey
	return &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		breaker:       newBreaker("stripe", cfg.Breaker, logger),
		logger:        logger,
	}
}

func newBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[any] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return gobreaker.NewCircuitBreaker[any](settings)
}

// execute 在熔断器保护下执行远程调用，失败统一包装为 ErrGateway
func (g *StripeGateway) execute(op string, fn func() (any, error)) (any, error) {
	result, err := g.breaker.Execute(fn)
	if err != nil {
		g.logger.Error("stripe call failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrGateway, op, err)
	}
	return result, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx

	result, err := g.execute("create customer", func() (any, error) {
		return customer.New(params)
	})
	if err != nil {
		return "", err
	}
	return result.(*stripe.Customer).ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.UserID, 10)),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.AddMetadata(metadataPlan, req.Plan)
	params.Context = ctx

	result, err := g.execute("create checkout session", func() (any, error) {
		return checkoutsession.New(params)
	})
	if err != nil {
		return "", err
	}
	return result.(*stripe.CheckoutSession).URL, nil
}

func (g *StripeGateway) CancelRemoteSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := g.execute("cancel subscription", func() (any, error) {
		return subscription.Cancel(subscriptionID, params)
	})
	return err
}

// UpdateRemoteSubscription 将远程订阅的第一个条目切换到新价格
func (g *StripeGateway) UpdateRemoteSubscription(ctx context.Context, subscriptionID, priceRef string) error {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	_, err := g.execute("update subscription", func() (any, error) {
		sub, err := subscription.Get(subscriptionID, getParams)
		if err != nil {
			return nil, err
		}
		if sub.Items == nil || len(sub.Items.Data) == 0 {
			return nil, errors.New("subscription has no items")
		}

		params := &stripe.SubscriptionParams{
			Items: []*stripe.SubscriptionItemsParams{
				{
					ID:    stripe.String(sub.Items.Data[0].ID),
					Price: stripe.String(priceRef),
				},
			},
			ProrationBehavior: stripe.String("create_prorations"),
		}
		params.Context = ctx
		return subscription.Update(subscriptionID, params)
	})
	return err
}

// VerifyAndParseWebhook 校验签名并提取业务关心的字段
func (g *StripeGateway) VerifyAndParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		g.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature verification failed: %v", ErrGateway, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: parse checkout session: %v", ErrGateway, err)
		}
		if session.ClientReferenceID != "" {
			userID, err := strconv.ParseInt(session.ClientReferenceID, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid client reference %q", ErrGateway, session.ClientReferenceID)
			}
			out.UserID = userID
		}
		out.Plan = session.Metadata[metadataPlan]
		if session.Customer != nil {
			out.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			out.SubscriptionID = session.Subscription.ID
		}

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: parse subscription: %v", ErrGateway, err)
		}
		out.SubscriptionID = sub.ID
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
	}

	return out, nil
}
