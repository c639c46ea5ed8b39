package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/model/dto"
	"github.com/shelfmate/library_server/internal/pkg/apperr"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/service"
)

type SubscriptionHandler struct {
	subService *service.SubscriptionService
}

func NewSubscriptionHandler(subService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subService: subService,
	}
}

// Current 获取当前套餐
// GET /api/v1/subscription
func (h *SubscriptionHandler) Current(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	sub, err := h.subService.GetActive(c.Request.Context(), userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			response.Success(c, dto.CurrentPlanResponse{Plan: model.PlanFree.String()})
			return
		}
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.CurrentPlanResponse{
		Plan:         sub.Plan.String(),
		Subscription: dto.NewSubscriptionInfo(sub),
	})
}

// History 获取订阅历史
// GET /api/v1/subscription/history
func (h *SubscriptionHandler) History(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	subs, err := h.subService.History(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	items := make([]*dto.SubscriptionInfo, 0, len(subs))
	for i := range subs {
		items = append(items, dto.NewSubscriptionInfo(&subs[i]))
	}
	response.Success(c, items)
}

// Cancel 取消订阅
// POST /api/v1/subscription/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, id, ok := h.ownedID(c)
	if !ok {
		return
	}

	if err := h.subService.Cancel(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}

	h.respondWith(c, userID, id)
}

// Upgrade 升级套餐，订阅需已关联支付订阅，否则应走 Checkout
// POST /api/v1/subscription/:id/upgrade
func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	h.changePlan(c, h.subService.Upgrade)
}

// Downgrade 降级套餐
// POST /api/v1/subscription/:id/downgrade
func (h *SubscriptionHandler) Downgrade(c *gin.Context) {
	h.changePlan(c, h.subService.Downgrade)
}

func (h *SubscriptionHandler) changePlan(c *gin.Context, change func(ctx context.Context, id uuid.UUID, plan model.Plan) error) {
	userID, id, ok := h.ownedID(c)
	if !ok {
		return
	}

	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := change(c.Request.Context(), id, model.Plan(req.Plan)); err != nil {
		response.FromError(c, err)
		return
	}

	h.respondWith(c, userID, id)
}

// Checkout 发起支付，返回支付页地址
// POST /api/v1/subscription/checkout
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	url, err := h.subService.InitiateCheckout(c.Request.Context(), userID, model.Plan(req.Plan), req.SuccessURL, req.CancelURL)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.CheckoutResponse{URL: url})
}

// ownedID 解析路径中的订阅 ID 并校验归属，失败时已写入响应
func (h *SubscriptionHandler) ownedID(c *gin.Context) (int64, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return 0, uuid.Nil, false
	}

	id, ok := subscriptionID(c)
	if !ok {
		return 0, uuid.Nil, false
	}

	if _, err := h.subService.GetForUser(c.Request.Context(), userID, id); err != nil {
		response.FromError(c, err)
		return 0, uuid.Nil, false
	}

	return userID, id, true
}

func (h *SubscriptionHandler) respondWith(c *gin.Context, userID int64, id uuid.UUID) {
	sub, err := h.subService.GetForUser(c.Request.Context(), userID, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, dto.NewSubscriptionInfo(sub))
}
