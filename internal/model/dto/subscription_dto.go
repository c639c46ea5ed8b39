package dto

import (
	"time"

	"github.com/shelfmate/library_server/internal/model"
)

// CreateSubscriptionRequest 运营直接创建订阅请求
type CreateSubscriptionRequest struct {
	UserID    int64     `json:"user_id" binding:"required"`
	Plan      string    `json:"plan" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	AutoRenew bool      `json:"auto_renew"`
}

// ChangePlanRequest 升级/降级请求
type ChangePlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// UpdateStatusRequest 状态变更请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CheckoutRequest 发起支付请求
type CheckoutRequest struct {
	Plan       string `json:"plan" binding:"required"`
	SuccessURL string `json:"success_url" binding:"required,url"`
	CancelURL  string `json:"cancel_url" binding:"required,url"`
}

// CheckoutResponse 支付跳转地址
type CheckoutResponse struct {
	URL string `json:"url"`
}

// SubscriptionInfo 订阅信息（返回给前端）
type SubscriptionInfo struct {
	ID        string `json:"id"`
	Plan      string `json:"plan"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	AutoRenew bool   `json:"auto_renew"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CurrentPlanResponse 当前套餐，无订阅时 subscription 为空且 plan 为 free
type CurrentPlanResponse struct {
	Plan         string            `json:"plan"`
	Subscription *SubscriptionInfo `json:"subscription,omitempty"`
}

func NewSubscriptionInfo(s *model.Subscription) *SubscriptionInfo {
	if s == nil {
		return nil
	}
	return &SubscriptionInfo{
		ID:        s.ID.String(),
		Plan:      string(s.Plan),
		Status:    string(s.Status),
		StartTime: s.StartTime.Format(time.RFC3339),
		EndTime:   s.EndTime.Format(time.RFC3339),
		AutoRenew: s.AutoRenew,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

// EntitlementSummary 当前用户的权益汇总
type EntitlementSummary struct {
	Plan      string                          `json:"plan"`
	ItemCount int64                           `json:"item_count"`
	ItemLimit *int64                          `json:"item_limit"` // nil 表示无上限
	Features  map[string]model.AccessDecision `json:"features"`
}
