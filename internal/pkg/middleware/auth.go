package middleware

import (
	"net/http"
	"strings"

	"ecommerce_backend/internal/domain/user/model"
	"ecommerce_backend/pkg/response"
	"ecommerce_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		// 检查格式 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}

		// 将 userID 和 role 存入上下文
		c.Set("userID", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.Error(c, http.StatusUnauthorized, response.ErrNoPermission, "Unauthorized")
			c.Abort()
			return
		}

		roleInt, ok := role.(int)
		if !ok {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Invalid role format")
			c.Abort()
			return
		}

		if roleInt != model.RoleAdmin {
			response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Admin permission required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserIDFromContext 读取认证中间件写入的用户ID
// 确认支付等入口不信任请求体里的用户标识，统一从这里取
func UserIDFromContext(c *gin.Context) string {
	val, _ := c.Get("userID")
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}
