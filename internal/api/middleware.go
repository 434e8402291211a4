package api

import (
	"net/http"
	"strings"

	"github.com/wbhoster/wbhoster/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// AuthRequired validates the admin JWT and stores its claims on the
// context.
func AuthRequired(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access denied. No token provided."})
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if id, ok := claims["id"].(float64); ok {
				c.Set("adminID", uint(id))
			}
			if username, ok := claims["username"].(string); ok {
				c.Set("adminUsername", username)
			}
		}
		c.Next()
	}
}

// CronSecretRequired authorizes the external cron trigger with a shared
// secret instead of an admin token.
func CronSecretRequired(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.CronSecret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Cron secret not configured"})
			return
		}
		if bearerToken(c) != cfg.CronSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid cron secret"})
			return
		}
		c.Next()
	}
}

// CORS mirrors the permissive middleware the admin UI expects.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
