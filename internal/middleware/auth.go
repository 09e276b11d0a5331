// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/partner-catalog/internal/i18n"
	"github.com/javajoker/partner-catalog/internal/models"
	"github.com/javajoker/partner-catalog/internal/utils"
)

// AuthRequired rejects requests without a valid bearer token with 401.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthTokenExpired))
			c.Abort()
			return
		}

		// Set user info in context
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("user_type", claims.UserType)
		c.Next()
	}
}

// ShopRequired must run after AuthRequired. Non-shop principals get 403.
func ShopRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userType, _ := utils.GetUserTypeFromContext(c)
		if userType != string(models.UserTypeShop) {
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired must run after AuthRequired. Non-admin principals get 403.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)
		userType, _ := utils.GetUserTypeFromContext(c)
		if userType != string(models.UserTypeAdmin) {
			utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAuthAdminRequired))
			c.Abort()
			return
		}
		c.Next()
	}
}
