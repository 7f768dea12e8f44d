package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clips-service/internal/auth"
)

// IdentityMiddleware resolves an optional bearer token into the request
// context. A missing header proceeds anonymously; a malformed or invalid
// credential is rejected.
func IdentityMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Set("userID", identity.UserID)
		c.Next()
	}
}
