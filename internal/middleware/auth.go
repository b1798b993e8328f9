package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"urbansprout/pkg/utils"
)

const (
	// AuthorizationHeader header carrying the bearer token
	AuthorizationHeader = "Authorization"
	// BearerPrefix bearer token prefix
	BearerPrefix = "Bearer "
	// UserIDKey context key for the authenticated user ID
	UserIDKey = "user_id"
	// UserRoleKey context key for the authenticated user role
	UserRoleKey = "user_role"
	// UsernameKey context key for the authenticated username
	UsernameKey = "username"
)

// UserInfo authenticated principal attached to the request context
type UserInfo struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// TokenValidator validates a bearer token and returns its principal
type TokenValidator func(token string) (*UserInfo, error)

// AuthConfig authentication middleware configuration
type AuthConfig struct {
	// TokenValidator validates the extracted token
	TokenValidator TokenValidator
	// SkipPaths paths exempt from authentication
	SkipPaths []string
	// RequiredRole role required to pass, empty means any
	RequiredRole string
}

// Auth authentication middleware
func Auth(validator TokenValidator) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		TokenValidator: validator,
	})
}

// AuthWithConfig authentication middleware with configuration
func AuthWithConfig(config AuthConfig) gin.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing token")
			c.Abort()
			return
		}

		userInfo, err := config.TokenValidator(token)
		if err != nil {
			utils.Error(c, utils.CodeUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		if config.RequiredRole != "" && userInfo.Role != config.RequiredRole {
			utils.Error(c, utils.CodeForbidden, "Insufficient permissions")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userInfo.ID)
		c.Set(UserRoleKey, userInfo.Role)
		c.Set(UsernameKey, userInfo.Username)

		c.Next()
	}
}

// RequireRole authentication middleware requiring a specific role
func RequireRole(validator TokenValidator, role string) gin.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		TokenValidator: validator,
		RequiredRole:   role,
	})
}

// GetUserID gets the authenticated user ID from the context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}

	if id, ok := userID.(uint64); ok {
		return id, true
	}
	return 0, false
}

// GetUserRole gets the authenticated user role from the context
func GetUserRole(c *gin.Context) (string, bool) {
	role, exists := c.Get(UserRoleKey)
	if !exists {
		return "", false
	}

	if roleStr, ok := role.(string); ok {
		return roleStr, true
	}
	return "", false
}

// GetUsername gets the authenticated username from the context
func GetUsername(c *gin.Context) (string, bool) {
	name, exists := c.Get(UsernameKey)
	if !exists {
		return "", false
	}

	if nameStr, ok := name.(string); ok {
		return nameStr, true
	}
	return "", false
}
