package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/middleware"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/internal/services"
	"github.com/skulbus/skulbus-backend/internal/utils"
)

// AuditRecorder stores audit entries without failing the request
type AuditRecorder interface {
	Record(ctx context.Context, entry services.AuditEntry)
}

// recordAudit logs an action taken by the current caller on one entity
func recordAudit(c *gin.Context, recorder AuditRecorder, action models.AuditAction, entityType string, entityID uuid.UUID, details models.AuditDetails) {
	if recorder == nil {
		return
	}

	entry := services.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		IPAddress:  utils.GetRealIP(c),
		UserAgent:  utils.GetUserAgent(c),
		Details:    details,
	}
	if actor, ok := middleware.GetActor(c); ok {
		userID := actor.UserID
		entry.UserID = &userID
		if entry.Details == nil {
			entry.Details = models.AuditDetails{}
		}
		entry.Details["role"] = string(actor.Role)
	}

	recorder.Record(c.Request.Context(), entry)
}
