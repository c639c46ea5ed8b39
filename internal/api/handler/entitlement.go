package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/service"
)

type EntitlementHandler struct {
	entitlementService *service.EntitlementService
}

func NewEntitlementHandler(entitlementService *service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{
		entitlementService: entitlementService,
	}
}

// Summary 当前用户的套餐、用量和各功能判定
// GET /api/v1/entitlements
func (h *EntitlementHandler) Summary(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	summary, err := h.entitlementService.Summary(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, summary)
}

// Check 查询单个功能，拒绝也作为正常结果返回
// GET /api/v1/entitlements/:feature
func (h *EntitlementHandler) Check(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	feature, err := model.ParseFeature(c.Param("feature"))
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	decision, err := h.entitlementService.HasAccess(c.Request.Context(), userID, feature)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, decision)
}
