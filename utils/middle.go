package utils

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var errUnauthorized = errors.New("unauthorized")

// AuthMiddleware checks the bearer token and stores its user in the context
// under "username" and "user_id". Upload records are owned by that name.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			FailWithStatus(c, http.StatusUnauthorized, errUnauthorized)
			c.Abort()
			return
		}
		claims, err := VerifyToken(strings.TrimSpace(token))
		if err != nil {
			FailWithStatus(c, http.StatusUnauthorized, errUnauthorized)
			c.Abort()
			return
		}
		c.Set("username", claims.Username)
		c.Set("user_id", claims.UserId)
		c.Next()
	}
}
