package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/service"
)

const (
	AuthHeaderKey  = "Authorization"
	AuthContextKey = "auth"
)

// AuthMiddleware requires a valid Bearer token and stores its claims
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortWith(c, domain.NewAuthorizationError("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, domain.NewAuthorizationError("invalid authorization header format, expected 'Bearer <token>'"))
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			abortWith(c, domain.NewAuthorizationError("invalid or expired token"))
			return
		}

		c.Set(AuthContextKey, claims)
		c.Next()
	}
}

// RequireScope rejects authenticated callers whose token lacks scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok {
			abortWith(c, domain.NewAuthorizationError("authentication required"))
			return
		}
		if !domain.HasScope(claims.Scopes, scope) {
			abortWith(c, domain.NewForbiddenError("token lacks the "+scope+" scope"))
			return
		}
		c.Next()
	}
}

// GetAuthClaims retrieves auth claims from context
func GetAuthClaims(c *gin.Context) (*service.TokenClaims, bool) {
	claims, exists := c.Get(AuthContextKey)
	if !exists {
		return nil, false
	}

	tokenClaims, ok := claims.(*service.TokenClaims)
	return tokenClaims, ok
}

func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
