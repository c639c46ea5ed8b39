package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelSubscriptionEvents = "subscription_events"
)

// 订阅事件类型
const (
	EventCreated       = "created"
	EventStatusChanged = "status_changed"
	EventCancelled     = "cancelled"
	EventPlanChanged   = "plan_changed"
	EventExpired       = "expired"
)

// SubscriptionEvent 订阅变更事件
type SubscriptionEvent struct {
	Type           string    `json:"type"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	UserID         int64     `json:"user_id,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	Status         string    `json:"status,omitempty"`
	Count          int64     `json:"count,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布订阅事件
func (p *Publisher) Publish(ctx context.Context, event *SubscriptionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription event: %w", err)
	}

	return p.client.Publish(ctx, ChannelSubscriptionEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*SubscriptionEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelSubscriptionEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event SubscriptionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
