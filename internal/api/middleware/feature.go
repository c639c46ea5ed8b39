package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/service"
)

// RequireFeature 当前用户套餐不包含 feature 时拒绝请求，需在 Auth 之后使用
func RequireFeature(entitlements *service.EntitlementService, feature model.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		decision, err := entitlements.HasAccess(c.Request.Context(), userID, feature)
		if err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		if !decision.Allowed {
			response.FromError(c, decision.Err())
			c.Abort()
			return
		}

		c.Next()
	}
}
