package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sender 实际投递通道
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Deliverer 消费通知队列并交给 Sender 投递，失败的消息按 MaxAttempts 重新入队
type Deliverer struct {
	queue       *Queue
	sender      Sender
	logger      *zap.Logger
	PollTimeout time.Duration
	MaxAttempts int
}

func NewDeliverer(q *Queue, sender Sender, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		queue:       q,
		sender:      sender,
		logger:      logger,
		PollTimeout: 5 * time.Second,
		MaxAttempts: 3,
	}
}

// Run 循环投递直到 ctx 取消
func (d *Deliverer) Run(ctx context.Context) {
	d.logger.Info("notification delivery started")
	for {
		if ctx.Err() != nil {
			d.logger.Info("notification delivery stopped")
			return
		}
		if _, err := d.DeliverOne(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("failed to pop notification", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// DeliverOne 处理一条消息，队列为空时返回 false
func (d *Deliverer) DeliverOne(ctx context.Context) (bool, error) {
	msg, err := d.queue.Pop(ctx, d.PollTimeout)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	msg.Attempts++
	if err := d.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("to", msg.To),
			zap.Int("attempts", msg.Attempts),
			zap.Error(err),
		)
		if msg.Attempts < d.MaxAttempts {
			if err := d.queue.Push(ctx, msg); err != nil {
				d.logger.Error("failed to requeue notification", zap.String("to", msg.To), zap.Error(err))
			}
		}
		return true, nil
	}

	d.logger.Info("notification delivered", zap.String("to", msg.To))
	return true, nil
}
