package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/middleware"
	"github.com/skulbus/skulbus-backend/internal/models"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindNotFound:          http.StatusNotFound,
	models.KindForbidden:         http.StatusForbidden,
	models.KindConflict:          http.StatusConflict,
	models.KindInvalidTransition: http.StatusConflict,
	models.KindTransient:         http.StatusServiceUnavailable,
	models.KindValidation:        http.StatusBadRequest,
}

// respondError writes err in the API's error shape. Unclassified errors become a 500
// and are logged with the request path.
func respondError(c *gin.Context, err error) {
	appErr, ok := models.AsAppError(err)
	if !ok {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	status, ok := kindStatus[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}

	// wrapped errors carry extra detail, e.g. the expected amount
	message := appErr.Message
	if full := err.Error(); full != appErr.Error() && strings.HasPrefix(full, appErr.Error()) {
		message = full
	}

	c.JSON(status, gin.H{
		"error":   string(appErr.Kind),
		"message": message,
		"code":    appErr.Code,
	})
}

// respondBindError reports a malformed request body
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": err.Error(),
		"code":    "INVALID_REQUEST",
	})
}

// pathUUID parses a UUID path parameter, writing a 400 when it is malformed
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid " + name,
			"code":    "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// currentActor returns the authenticated caller, writing a 401 when absent
func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User context not found",
			"code":    "MISSING_USER_CONTEXT",
		})
	}
	return actor, ok
}
