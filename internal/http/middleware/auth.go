package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

// AuthMiddleware validates the Authorization bearer token and stores the
// subject claim in the request context.
func AuthMiddleware(appSecret string) gin.HandlerFunc {
	secret := []byte(appSecret)
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, ok := claims["sub"].(string); ok {
				c.Set(userIDKey, sub)
			}
		}
		c.Next()
	}
}

// InternalKeyMiddleware guards worker-facing endpoints with the shared
// secret. An unconfigured key rejects everything.
func InternalKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || c.GetHeader("X-Internal-Key") != key {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated user's ID set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
