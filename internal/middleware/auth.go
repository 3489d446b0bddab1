package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"healthtrends-server/internal/config"
	"healthtrends-server/internal/models"
	"healthtrends-server/internal/utils"
)

// Claims are the validated identity-provider token claims. The subject (or
// username, when the provider issues one) doubles as the patient identifier
// for ownership checks; Groups carries the role claim set.
type Claims struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Groups   []string `json:"cognito:groups"`
	jwt.RegisteredClaims
}

// PatientID returns the identifier ownership checks run against.
func (c *Claims) PatientID() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// AuthMiddleware validates the bearer credential against the identity
// provider's published signing keys and puts the subject, email and group
// claims on the request context.
func AuthMiddleware(cfg *config.Config, keys utils.KeySource) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenString := authHeader
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenString = parts[1]
		}

		claims := &Claims{}
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"RS256"}),
		}
		if cfg.Auth.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.Auth.Issuer))
		}
		if cfg.Auth.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.Auth.Audience))
		}

		token, err := jwt.ParseWithClaims(tokenString, claims, utils.Keyfunc(keys), opts...)
		if err != nil || !token.Valid {
			utils.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		// Set user information in context for downstream handlers
		c.Set("userID", claims.PatientID())
		c.Set("userEmail", claims.Email)
		c.Set("userGroups", claims.Groups)

		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		groups, exists := GetGroupsFromContext(c)
		if !exists {
			utils.InternalServerError(c, "User groups not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		if !HasRole(groups, allowedRoles...) {
			utils.Forbidden(c, "You do not have permission to access this resource.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// HasRole reports whether any of the allowed roles appears in the group
// claim set.
func HasRole(groups []string, allowedRoles ...models.Role) bool {
	for _, group := range groups {
		for _, role := range allowedRoles {
			if group == string(role) {
				return true
			}
		}
	}
	return false
}

// CanAccessPatient reports whether the caller may read data belonging to
// patientID: elevated roles may read anyone, patients only themselves.
func CanAccessPatient(c *gin.Context, patientID string) bool {
	groups, _ := GetGroupsFromContext(c)
	if HasRole(groups, models.RoleDoctor, models.RoleLab, models.RoleAdmin) {
		return true
	}
	userID, ok := GetUserIDFromContext(c)
	return ok && userID == patientID
}

// Helper function to get user ID from context
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok
}

// Helper function to get the user's email from context
func GetEmailFromContext(c *gin.Context) (string, bool) {
	email, exists := c.Get("userEmail")
	if !exists {
		return "", false
	}
	emailStr, ok := email.(string)
	return emailStr, ok
}

// Helper function to get the user's group claims from context
func GetGroupsFromContext(c *gin.Context) ([]string, bool) {
	groups, exists := c.Get("userGroups")
	if !exists {
		return nil, false
	}
	list, ok := groups.([]string)
	return list, ok
}
