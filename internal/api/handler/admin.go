package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/model/dto"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/service"
)

// AdminHandler 运营接口，绕过支付直接修改订阅，路由上必须挂 RequireAdmin
type AdminHandler struct {
	subService *service.SubscriptionService
}

func NewAdminHandler(subService *service.SubscriptionService) *AdminHandler {
	return &AdminHandler{
		subService: subService,
	}
}

// CreateSubscription 为指定用户创建订阅，原有 active 订阅会被取消
// POST /api/v1/admin/subscriptions
func (h *AdminHandler) CreateSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subService.Create(c.Request.Context(), service.CreateInput{
		UserID:    req.UserID,
		Plan:      model.Plan(req.Plan),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, dto.NewSubscriptionInfo(sub))
}

// UpdateStatus 直接变更订阅状态
// PUT /api/v1/admin/subscriptions/:id/status
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.subService.UpdateStatus(c.Request.Context(), id, model.Status(req.Status)); err != nil {
		response.FromError(c, err)
		return
	}

	h.respondWith(c, id)
}

// Upgrade 升级套餐，不要求关联支付订阅
// POST /api/v1/admin/subscriptions/:id/upgrade
func (h *AdminHandler) Upgrade(c *gin.Context) {
	id, ok := subscriptionID(c)
	if !ok {
		return
	}

	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	ctx := service.AsOperator(c.Request.Context())
	if err := h.subService.Upgrade(ctx, id, model.Plan(req.Plan)); err != nil {
		response.FromError(c, err)
		return
	}

	h.respondWith(c, id)
}

func (h *AdminHandler) respondWith(c *gin.Context, id uuid.UUID) {
	sub, err := h.subService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, dto.NewSubscriptionInfo(sub))
}

func subscriptionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ParamError(c, "invalid subscription id")
		return uuid.Nil, false
	}
	return id, true
}
