package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/pkg/jwt"
)

// ActorContextKey is the key used to store the caller in Gin context
const ActorContextKey = "actor"

// PermissionChecker decides whether a role holds a permission
type PermissionChecker interface {
	Allowed(ctx context.Context, role, permission string) (bool, error)
}

// AuthMiddleware validates the bearer token and stores the caller as a models.Actor
func AuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logrus.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).
				Warn("auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logrus.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP()}).
				Warn("auth failed: invalid authorization format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			entry := logrus.WithFields(logrus.Fields{"path": c.Request.URL.Path, "ip": c.ClientIP(), "error": err.Error()})
			if jwt.IsExpired(err) {
				entry.Warn("auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
			} else {
				entry.Warn("auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		role := models.Role(claims.Role)
		if !role.IsValid() {
			abortUnauthorized(c, "invalid_token", "Token carries an unknown role", "INVALID_TOKEN")
			return
		}

		c.Set(ActorContextKey, models.Actor{
			UserID: claims.UserID,
			Phone:  claims.Phone,
			Role:   role,
		})
		c.Next()
	}
}

// RequirePermission rejects callers whose role does not hold permission
func RequirePermission(checker PermissionChecker, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, exists := GetActor(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT")
			return
		}

		allowed, err := checker.Allowed(c.Request.Context(), string(actor.Role), permission)
		if err != nil {
			logrus.WithError(err).WithField("permission", permission).Error("policy evaluation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to evaluate permissions",
				"code":    "POLICY_ERROR",
			})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			return
		}

		c.Next()
	}
}

// GetActor retrieves the authenticated caller from Gin context
func GetActor(c *gin.Context) (models.Actor, bool) {
	value, exists := c.Get(ActorContextKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := value.(models.Actor)
	return actor, ok
}

func abortUnauthorized(c *gin.Context, errCode, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errCode,
		"message": message,
		"code":    code,
	})
}
