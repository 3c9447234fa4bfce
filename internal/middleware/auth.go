package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/services"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

const userContextKey = "authUser"

type AuthMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, auth services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "auth"), auth: auth}
}

// RequireAuth validates the access token and stores the user on the gin
// context. SSE clients cannot set headers from EventSource, so the token may
// also arrive as a query parameter.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		user, err := am.auth.VerifyToken(c.Request.Context(), tokenString)
		if err != nil {
			var ae *apierr.Error
			status, code := http.StatusUnauthorized, "UNAUTHORIZED"
			if errors.As(err, &ae) {
				status, code = ae.Status, ae.Code
			}
			c.AbortWithStatusJSON(status, gin.H{"error": code})
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// CurrentUser returns the authenticated user placed by RequireAuth.
func CurrentUser(c *gin.Context) *types.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*types.User)
	return user
}
