package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/apperr"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/payment"
	"github.com/shelfmate/library_server/internal/pkg/pubsub"
	"github.com/shelfmate/library_server/internal/repository"
)

// planChangeAttempts 并发修改套餐时 CAS 的最大重试次数
const planChangeAttempts = 3

// EventPublisher 订阅变更事件的发布端
type EventPublisher interface {
	Publish(ctx context.Context, event *pubsub.SubscriptionEvent) error
}

// CreateInput 创建订阅参数
type CreateInput struct {
	UserID                int64
	Plan                  model.Plan
	StartTime             time.Time
	EndTime               time.Time
	AutoRenew             bool
	PaymentCustomerID     string
	PaymentSubscriptionID string
}

type SubscriptionService struct {
	subRepo   *repository.SubscriptionRepository
	userRepo  *repository.UserRepository
	gateway   payment.Gateway
	publisher EventPublisher
	cfg       *config.Config
	clock     clock.Clock
	logger    *zap.Logger
}

func NewSubscriptionService(
	subRepo *repository.SubscriptionRepository,
	userRepo *repository.UserRepository,
	gateway payment.Gateway,
	publisher EventPublisher,
	cfg *config.Config,
	clk clock.Clock,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:   subRepo,
		userRepo:  userRepo,
		gateway:   gateway,
		publisher: publisher,
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
	}
}

// GetActive 用户当前生效的订阅（开始时间最晚的 active 记录）
func (s *SubscriptionService) GetActive(ctx context.Context, userID int64) (*model.Subscription, error) {
	sub, err := s.subRepo.GetLatestActive(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no active subscription for user %d", userID)
		}
		return nil, apperr.Internal("failed to load active subscription", err)
	}
	return sub, nil
}

// History 用户全部订阅记录
func (s *SubscriptionService) History(ctx context.Context, userID int64) ([]model.Subscription, error) {
	subs, err := s.subRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to list subscriptions", err)
	}
	return subs, nil
}

// GetForUser 加载订阅并校验归属，不属于该用户时按不存在处理
func (s *SubscriptionService) GetForUser(ctx context.Context, userID int64, id uuid.UUID) (*model.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, apperr.NotFound("subscription %s not found", id)
	}
	return sub, nil
}

// Get 按 ID 加载订阅，不校验归属
func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	return s.load(ctx, id)
}

// Create 创建 active 订阅，同一事务内将用户原有的 active 订阅置为 cancelled
func (s *SubscriptionService) Create(ctx context.Context, in CreateInput) (*model.Subscription, error) {
	var errs apperr.List
	if in.UserID <= 0 {
		errs = append(errs, apperr.Validation("user id must be positive"))
	}
	if !in.Plan.Valid() {
		errs = append(errs, apperr.Validation("unknown plan %q", in.Plan))
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		errs = append(errs, apperr.Validation("start time and end time are required"))
	} else if in.EndTime.Before(in.StartTime) {
		errs = append(errs, apperr.Validation("end time must not be before start time"))
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, in.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user %d not found", in.UserID)
		}
		return nil, apperr.Internal("failed to load user", err)
	}

	now := s.clock.Now()
	sub := &model.Subscription{
		ID:        uuid.New(),
		UserID:    in.UserID,
		Plan:      in.Plan,
		Status:    model.StatusActive,
		StartTime: in.StartTime.UTC(),
		EndTime:   in.EndTime.UTC(),
		AutoRenew: in.AutoRenew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.PaymentCustomerID != "" {
		sub.PaymentCustomerID = &in.PaymentCustomerID
	}
	if in.PaymentSubscriptionID != "" {
		sub.PaymentSubscriptionID = &in.PaymentSubscriptionID
	}

	if err := s.subRepo.CreateReplacingActive(ctx, sub, now); err != nil {
		return nil, apperr.Internal("failed to create subscription", err)
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.Int64("user_id", sub.UserID),
		zap.String("plan", sub.Plan.String()),
	)
	s.publish(ctx, pubsub.EventCreated, sub)
	return sub, nil
}

// UpdateStatus 直接变更状态，不校验状态迁移顺序
func (s *SubscriptionService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if _, err := model.ParseStatus(string(status)); err != nil {
		return apperr.Validation("unknown status %q", status)
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.subRepo.UpdateStatus(ctx, id, status, s.clock.Now()); err != nil {
		return apperr.Internal("failed to update subscription status", err)
	}

	sub.Status = status
	s.publish(ctx, pubsub.EventStatusChanged, sub)
	return nil
}

// Cancel 取消订阅，已取消的订阅会重新记录结束时间。
// 结束时间取当前时间，订阅尚未开始时取开始时间，保证结束时间不早于开始时间
func (s *SubscriptionService) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.cancel(ctx, id, true)
}

func (s *SubscriptionService) cancel(ctx context.Context, id uuid.UUID, remote bool) error {
	sub, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.subRepo.Cancel(ctx, id, s.clock.Now()); err != nil {
		return apperr.Internal("failed to cancel subscription", err)
	}

	if remote && sub.PaymentSubscriptionID != nil && s.gateway != nil {
		if err := s.gateway.CancelRemoteSubscription(ctx, *sub.PaymentSubscriptionID); err != nil {
			s.logger.Error("failed to cancel remote subscription",
				zap.String("subscription_id", id.String()),
				zap.String("payment_subscription_id", *sub.PaymentSubscriptionID),
				zap.Error(err),
			)
		}
	}

	sub.Status = model.StatusCancelled
	s.publish(ctx, pubsub.EventCancelled, sub)
	return nil
}

// Upgrade 升级套餐，新套餐必须高于当前套餐。
// 非运营调用时订阅必须已关联支付订阅且新套餐配置了价格，否则应走 InitiateCheckout
func (s *SubscriptionService) Upgrade(ctx context.Context, id uuid.UUID, newPlan model.Plan) error {
	return s.changePlan(ctx, id, newPlan, true)
}

// Downgrade 降级套餐，新套餐必须低于当前套餐
func (s *SubscriptionService) Downgrade(ctx context.Context, id uuid.UUID, newPlan model.Plan) error {
	return s.changePlan(ctx, id, newPlan, false)
}

func (s *SubscriptionService) changePlan(ctx context.Context, id uuid.UUID, newPlan model.Plan, upgrade bool) (err error) {
	if !newPlan.Valid() {
		return apperr.Validation("unknown plan %q", newPlan)
	}

	remoteDone := false
	defer func() {
		if err != nil && remoteDone {
			s.restoreRemotePlan(ctx, id, newPlan)
		}
	}()

	for attempt := 0; attempt < planChangeAttempts; attempt++ {
		sub, err := s.load(ctx, id)
		if err != nil {
			return err
		}

		if upgrade && !newPlan.Above(sub.Plan) {
			return apperr.Validation("new plan must be an upgrade")
		}
		if !upgrade && !sub.Plan.Above(newPlan) {
			return apperr.Validation("new plan must be a downgrade")
		}
		if upgrade && !IsOperator(ctx) {
			if err := s.requirePaidUpgrade(sub, newPlan); err != nil {
				return err
			}
		}

		if !remoteDone {
			pushed, err := s.updateRemotePlan(ctx, sub, newPlan)
			if err != nil {
				return err
			}
			remoteDone = pushed
		}

		ok, err := s.subRepo.CompareAndSwapPlan(ctx, id, sub.Plan, newPlan, s.clock.Now())
		if err != nil {
			return apperr.Internal("failed to change plan", err)
		}
		if ok {
			s.logger.Info("subscription plan changed",
				zap.String("subscription_id", id.String()),
				zap.String("from", sub.Plan.String()),
				zap.String("to", newPlan.String()),
			)
			sub.Plan = newPlan
			s.publish(ctx, pubsub.EventPlanChanged, sub)
			return nil
		}

		s.logger.Warn("plan changed concurrently, retrying",
			zap.String("subscription_id", id.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return apperr.Internal("plan change lost to concurrent updates", nil)
}

// requirePaidUpgrade 升级必须能在支付平台上改价
func (s *SubscriptionService) requirePaidUpgrade(sub *model.Subscription, newPlan model.Plan) error {
	if sub.PaymentSubscriptionID == nil || s.gateway == nil {
		return apperr.Validation("subscription has no payment subscription, use checkout to upgrade")
	}
	if _, ok := s.cfg.Payment.PriceFor(newPlan.String()); !ok {
		return apperr.Validation("no price configured for plan %q", newPlan)
	}
	return nil
}

// updateRemotePlan 订阅关联了支付平台时先同步远程价格，返回是否实际改价
func (s *SubscriptionService) updateRemotePlan(ctx context.Context, sub *model.Subscription, newPlan model.Plan) (bool, error) {
	if sub.PaymentSubscriptionID == nil || s.gateway == nil {
		return false, nil
	}
	price, ok := s.cfg.Payment.PriceFor(newPlan.String())
	if !ok {
		return false, nil
	}
	if err := s.gateway.UpdateRemoteSubscription(ctx, *sub.PaymentSubscriptionID, price); err != nil {
		return false, apperr.External("failed to update payment subscription", err)
	}
	return true, nil
}

// restoreRemotePlan 远程已改价但本地写入失败时，把远程价格改回库里记录的套餐
func (s *SubscriptionService) restoreRemotePlan(ctx context.Context, id uuid.UUID, pushed model.Plan) {
	log := s.logger.With(
		zap.String("subscription_id", id.String()),
		zap.String("remote_plan", pushed.String()),
	)

	sub, err := s.load(ctx, id)
	if err != nil {
		log.Warn("remote plan may diverge from stored plan", zap.Error(err))
		return
	}
	log = log.With(zap.String("stored_plan", sub.Plan.String()))
	if sub.Plan == pushed {
		return
	}

	restored, err := s.updateRemotePlan(ctx, sub, sub.Plan)
	if err != nil {
		log.Error("failed to restore remote plan", zap.Error(err))
		return
	}
	if !restored {
		log.Warn("remote plan diverges from stored plan, no price configured to restore")
		return
	}
	log.Warn("local plan change failed, remote plan restored")
}

// InitiateCheckout 创建支付会话并返回跳转地址，订阅在支付完成的回调里创建
func (s *SubscriptionService) InitiateCheckout(ctx context.Context, userID int64, plan model.Plan, successURL, cancelURL string) (string, error) {
	var errs apperr.List
	price := ""
	switch {
	case !plan.Valid():
		errs = append(errs, apperr.Validation("unknown plan %q", plan))
	case plan == model.PlanFree:
		errs = append(errs, apperr.Validation("the free plan does not require checkout"))
	default:
		p, ok := s.cfg.Payment.PriceFor(plan.String())
		if !ok {
			errs = append(errs, apperr.Validation("checkout is not available for the %s plan", plan))
		}
		price = p
	}
	if !validRedirect(successURL) {
		errs = append(errs, apperr.Validation("success url must be an absolute http(s) url"))
	}
	if !validRedirect(cancelURL) {
		errs = append(errs, apperr.Validation("cancel url must be an absolute http(s) url"))
	}
	if err := errs.OrNil(); err != nil {
		return "", err
	}
	if s.gateway == nil {
		return "", apperr.External("payment gateway is not configured", nil)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperr.NotFound("user %d not found", userID)
		}
		return "", apperr.Internal("failed to load user", err)
	}

	customerID := ""
	if user.PaymentCustomerID != nil {
		customerID = *user.PaymentCustomerID
	} else {
		customerID, err = s.gateway.CreateCustomer(ctx, user.Email)
		if err != nil {
			return "", apperr.External("failed to create payment customer", err)
		}
		stored, err := s.userRepo.SetPaymentCustomerID(ctx, userID, customerID)
		if err != nil {
			return "", apperr.Internal("failed to store payment customer", err)
		}
		if !stored {
			// 并发请求已写入客户 ID，以库中的为准
			latest, err := s.userRepo.GetByID(ctx, userID)
			if err != nil {
				return "", apperr.Internal("failed to load user", err)
			}
			if latest.PaymentCustomerID != nil {
				customerID = *latest.PaymentCustomerID
			}
		}
	}

	checkoutURL, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		UserID:     userID,
		CustomerID: customerID,
		Plan:       plan.String(),
		PriceRef:   price,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return "", apperr.External("failed to create checkout session", err)
	}
	return checkoutURL, nil
}

func validRedirect(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ApplyWebhook 处理支付平台回调：支付完成创建订阅，远程订阅删除则本地取消
func (s *SubscriptionService) ApplyWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return apperr.External("payment gateway is not configured", nil)
	}
	event, err := s.gateway.VerifyAndParseWebhook(payload, signature)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid webhook", err)
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	switch event.Type {
	case payment.EventCheckoutCompleted:
		plan, err := model.ParsePlan(event.Plan)
		if err != nil {
			return apperr.Validation("checkout event carries unknown plan %q", event.Plan)
		}
		if event.SubscriptionID != "" {
			if _, err := s.subRepo.GetByPaymentSubscriptionID(ctx, event.SubscriptionID); err == nil {
				log.Info("checkout already applied")
				return nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Internal("failed to look up subscription", err)
			}
		}
		now := s.clock.Now()
		_, err = s.Create(ctx, CreateInput{
			UserID:                event.UserID,
			Plan:                  plan,
			StartTime:             now,
			EndTime:               now.AddDate(0, 1, 0),
			AutoRenew:             true,
			PaymentCustomerID:     event.CustomerID,
			PaymentSubscriptionID: event.SubscriptionID,
		})
		return err

	case payment.EventSubscriptionDeleted:
		sub, err := s.subRepo.GetByPaymentSubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warn("no local subscription for remote subscription", zap.String("payment_subscription_id", event.SubscriptionID))
				return nil
			}
			return apperr.Internal("failed to look up subscription", err)
		}
		return s.cancel(ctx, sub.ID, false)

	default:
		log.Debug("ignoring payment event")
		return nil
	}
}

// ExpireOverdue 将到期且不自动续费的 active 订阅置为 expired
func (s *SubscriptionService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.subRepo.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, apperr.Internal("failed to expire subscriptions", err)
	}
	if n > 0 {
		s.logger.Info("expired overdue subscriptions", zap.Int64("count", n))
		if s.publisher != nil {
			event := &pubsub.SubscriptionEvent{Type: pubsub.EventExpired, Count: n, OccurredAt: s.clock.Now()}
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Warn("failed to publish subscription event", zap.Error(err))
			}
		}
	}
	return n, nil
}

func (s *SubscriptionService) load(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("subscription %s not found", id)
		}
		return nil, apperr.Internal("failed to load subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionService) publish(ctx context.Context, eventType string, sub *model.Subscription) {
	if s.publisher == nil {
		return
	}
	event := &pubsub.SubscriptionEvent{
		Type:           eventType,
		SubscriptionID: sub.ID.String(),
		UserID:         sub.UserID,
		Plan:           sub.Plan.String(),
		Status:         string(sub.Status),
		OccurredAt:     s.clock.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish subscription event",
			zap.String("type", eventType),
			zap.String("subscription_id", event.SubscriptionID),
			zap.Error(err),
		)
	}
}

