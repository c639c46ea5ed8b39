package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/shelfmate/library_server/internal/pkg/jwt"
	"github.com/shelfmate/library_server/internal/pkg/response"
)

// RequireAdmin 仅允许运营角色访问，需在 Auth 之后使用
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		if GetRole(c) != jwt.RoleAdmin {
			response.PermissionError(c, "admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
