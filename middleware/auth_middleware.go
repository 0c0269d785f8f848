package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/api/utils"
)

// Context keys set by AuthRequired.
const (
	ContextAccountID    = "account_id"
	ContextAccountEmail = "account_email"
	ContextAuthMethod   = "auth_method"
)

const (
	AuthMethodAPIKey = "api_key"
	AuthMethodJWT    = "jwt"

	TokenCookie = "jwt_token"
)

// AuthRequired admits requests carrying the static API key (when one is
// configured) or a valid JWT from the cookie or a Bearer header.
func AuthRequired(tokens *utils.TokenIssuer, apiKey string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			if key := c.GetHeader("X-API-KEY"); key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				c.Set(ContextAuthMethod, AuthMethodAPIKey)
				c.Next()
				return
			}
		}

		tokenString, err := c.Cookie(TokenCookie)
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			if tokenString == "" {
				logger.Debug("No JWT token found in cookie or header", "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			logger.Info("Invalid JWT token", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextAuthMethod, AuthMethodJWT)
		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextAccountEmail, claims.Email)
		logger.Debug("Account authenticated", "accountId", claims.AccountID)
		c.Next()
	}
}
