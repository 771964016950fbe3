package middleware

import (
	"context"
	"net/http"
	"strings"

	"parcelhop/config"
	"parcelhop/internal/auth"
	"parcelhop/internal/repository"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer JWT and sets user_id and email in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("claims", claims)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	v, _ := c.Get("user_id")
	if v == nil {
		return 0
	}
	return v.(uint)
}

// RequestContext returns the request context annotated with the caller's IP
// and user agent for audit entries.
func RequestContext(c *gin.Context) context.Context {
	ctx := context.WithValue(c.Request.Context(), repository.ClientIPKey{}, c.ClientIP())
	return context.WithValue(ctx, repository.UserAgentKey{}, c.Request.UserAgent())
}
