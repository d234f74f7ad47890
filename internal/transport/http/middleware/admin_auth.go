package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"whatsapp-pdf-assistant/internal/transport/http/response"
)

const (
	HeaderAdminKey      = "X-Admin-Key"
	ContextAdminAuthKey = "admin_auth"
	adminAuthMethodJWT  = "jwt"
	adminAuthMethodKey  = "key"
	bearerPrefix        = "Bearer "
)

// AdminVerifier checks the two accepted admin credentials.
type AdminVerifier interface {
	VerifySecret(secret string) bool
	VerifyToken(token string) error
}

// AdminAuth accepts either "Authorization: Bearer <jwt>" or the shared secret
// in X-Admin-Key.
func AdminAuth(verifier AdminVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := strings.TrimSpace(c.GetHeader("Authorization")); authHeader != "" {
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
				c.Abort()
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if err := verifier.VerifyToken(token); err != nil {
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
				c.Abort()
				return
			}
			c.Set(ContextAdminAuthKey, adminAuthMethodJWT)
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(HeaderAdminKey))
		if key == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing admin credential")
			c.Abort()
			return
		}
		if !verifier.VerifySecret(key) {
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, "invalid admin key")
			c.Abort()
			return
		}
		c.Set(ContextAdminAuthKey, adminAuthMethodKey)
		c.Next()
	}
}
