package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelfmate/library_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// updatedAt 更新时间不早于创建时间
func updatedAt(now time.Time) clause.Expr {
	return gorm.Expr("CASE WHEN created_at > ? THEN created_at ELSE ? END", now, now)
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByPaymentSubscriptionID(ctx context.Context, ref string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("payment_subscription_id = ?", ref).
		Order("start_time DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetLatestActive 用户最近开始的 active 订阅
func (r *SubscriptionRepository) GetLatestActive(ctx context.Context, userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.StatusActive).
		Order("start_time DESC").
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser 用户全部订阅记录，最新的在前
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// ListActiveByPlans 指定套餐下所有 active 订阅
func (r *SubscriptionRepository) ListActiveByPlans(ctx context.Context, plans []model.Plan) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND plan IN ?", model.StatusActive, plans).
		Order("user_id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) CountActiveByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("user_id = ? AND status = ?", userID, model.StatusActive).
		Count(&count).Error
	return count, err
}

// CreateReplacingActive 在同一事务内注销用户已有的 active 订阅并插入新订阅。
// 用户行加 FOR UPDATE 锁，同一用户的并发创建会串行执行。
func (r *SubscriptionRepository) CreateReplacingActive(ctx context.Context, sub *model.Subscription, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner []model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", sub.UserID).
			Limit(1).
			Find(&owner).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.Subscription{}).
			Where("user_id = ? AND status = ?", sub.UserID, model.StatusActive).
			Updates(map[string]interface{}{
				"status":     model.StatusCancelled,
				"updated_at": updatedAt(now),
			}).Error; err != nil {
			return err
		}

		return tx.Create(sub).Error
	})
}

// UpdateStatus 直接变更状态，返回受影响行数
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": updatedAt(now),
		})
	return result.RowsAffected, result.Error
}

// Cancel 标记为已取消并写入结束时间，结束时间不早于开始时间
func (r *SubscriptionRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.StatusCancelled,
			"end_time":   gorm.Expr("CASE WHEN start_time > ? THEN start_time ELSE ? END", now, now),
			"updated_at": updatedAt(now),
		})
	return result.RowsAffected, result.Error
}

// CompareAndSwapPlan 仅当当前套餐仍为 from 时才改为 to
func (r *SubscriptionRepository) CompareAndSwapPlan(ctx context.Context, id uuid.UUID, from, to model.Plan, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND plan = ?", id, from).
		Updates(map[string]interface{}{
			"plan":       to,
			"updated_at": updatedAt(now),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ExpireOverdue 将已过期且不自动续费的 active 订阅标记为 expired
func (r *SubscriptionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND auto_renew = ? AND end_time < ?", model.StatusActive, false, now).
		Updates(map[string]interface{}{
			"status":     model.StatusExpired,
			"updated_at": updatedAt(now),
		})
	return result.RowsAffected, result.Error
}
