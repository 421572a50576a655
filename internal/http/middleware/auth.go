package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/homemaster-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextSubjectKey = "subject"
	ContextRoleKey    = "role"
)

// AdminAuthMiddleware проверяет JWT access токен администратора.
func AdminAuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
			return
		}

		sub, role, err := tokens.Parse(strings.TrimPrefix(auth, "Bearer "))
		if err != nil || role != "admin" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден"})
			return
		}

		c.Set(ContextSubjectKey, sub)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}

// DebugTokenMiddleware пускает к диагностике только по DEBUG_TOKEN.
// Вне development пустой токен означает полный отказ в доступе.
func DebugTokenMiddleware(env, debugToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if env == "development" {
			c.Next()
			return
		}
		if debugToken == "" || c.GetHeader("X-Debug-Token") != debugToken {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "недостаточно прав"})
			return
		}
		c.Next()
	}
}
