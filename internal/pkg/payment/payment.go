package payment

import (
	"context"
	"errors"
)

// ErrGateway 支付平台调用失败
var ErrGateway = errors.New("payment gateway error")

// 支付平台事件类型
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// CheckoutRequest 发起支付会话所需参数
type CheckoutRequest struct {
	UserID     int64
	CustomerID string
	Plan       string
	PriceRef   string
	SuccessURL string
	CancelURL  string
}

// WebhookEvent 验签后的支付平台事件
type WebhookEvent struct {
	ID             string
	Type           string
	UserID         int64
	Plan           string
	CustomerID     string
	SubscriptionID string
}

// Gateway 支付平台
type Gateway interface {
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CancelRemoteSubscription(ctx context.Context, subscriptionID string) error
	UpdateRemoteSubscription(ctx context.Context, subscriptionID, priceRef string) error
	VerifyAndParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
