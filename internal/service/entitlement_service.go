package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/model/dto"
	"github.com/shelfmate/library_server/internal/pkg/apperr"
	"github.com/shelfmate/library_server/internal/repository"
)

// EntitlementService 根据用户当前套餐判定功能权限，只读无副作用
type EntitlementService struct {
	subscriptions *SubscriptionService
	itemRepo      *repository.ItemRepository
	logger        *zap.Logger
}

func NewEntitlementService(
	subscriptions *SubscriptionService,
	itemRepo *repository.ItemRepository,
	logger *zap.Logger,
) *EntitlementService {
	return &EntitlementService{
		subscriptions: subscriptions,
		itemRepo:      itemRepo,
		logger:        logger,
	}
}

// PlanFor 用户当前套餐，没有 active 订阅视为 free
func (s *EntitlementService) PlanFor(ctx context.Context, userID int64) (model.Plan, error) {
	sub, err := s.subscriptions.GetActive(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return model.PlanFree, nil
		}
		return "", err
	}
	return sub.Plan, nil
}

// HasAccess 判定用户能否使用某功能。拒绝通过返回值表达，error 仅表示存储故障
func (s *EntitlementService) HasAccess(ctx context.Context, userID int64, feature model.Feature) (*model.AccessDecision, error) {
	plan, err := s.PlanFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	var count int64
	if model.NeedsUsage(feature) {
		count, err = s.itemRepo.CountItems(ctx, userID)
		if err != nil {
			return nil, apperr.Internal("failed to count items", err)
		}
	}

	decision := model.Evaluate(plan, feature, count)
	if !decision.Allowed {
		s.logger.Debug("feature denied",
			zap.Int64("user_id", userID),
			zap.String("feature", string(feature)),
			zap.String("plan", plan.String()),
			zap.String("reason", decision.Reason),
		)
	}
	return &decision, nil
}

// Summary 当前套餐、条目用量及全部功能的判定结果
func (s *EntitlementService) Summary(ctx context.Context, userID int64) (*dto.EntitlementSummary, error) {
	plan, err := s.PlanFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.itemRepo.CountItems(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to count items", err)
	}

	summary := &dto.EntitlementSummary{
		Plan:      plan.String(),
		ItemCount: count,
		Features:  make(map[string]model.AccessDecision, len(model.Features)),
	}
	if limit, unlimited := model.ItemCeiling(plan); !unlimited {
		summary.ItemLimit = &limit
	}
	for _, f := range model.Features {
		summary.Features[string(f)] = model.Evaluate(plan, f, count)
	}
	return summary, nil
}
