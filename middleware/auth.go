package middleware

import (
	"net/http"
	"strings"

	"go-khora/utils"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// AuthMiddleware 校验 Bearer 令牌，把 user_id 放进上下文
func AuthMiddleware(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status_code": http.StatusUnauthorized, "msg": "Unauthorized"})
			return
		}
		claims, err := issuer.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status_code": http.StatusUnauthorized, "msg": "Invalid token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// UserID 当前请求的用户
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
