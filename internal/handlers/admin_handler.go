package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// PendingSweeper runs one pending-booking expiry sweep
type PendingSweeper interface {
	RunOnce(ctx context.Context) int
}

// JobScheduler exposes the scheduled maintenance jobs
type JobScheduler interface {
	RunReleaseOrphansNow(ctx context.Context) (int, error)
	GetJobStatus() map[string]interface{}
}

// AuditTrail reads audit records for one entity
type AuditTrail interface {
	Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error)
}

// AdminHandler serves admin maintenance endpoints
type AdminHandler struct {
	sweeper   PendingSweeper
	scheduler JobScheduler
	trail     AuditTrail
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sweeper PendingSweeper, scheduler JobScheduler, trail AuditTrail) *AdminHandler {
	return &AdminHandler{
		sweeper:   sweeper,
		scheduler: scheduler,
		trail:     trail,
	}
}

// ExpireBookings runs the pending-booking expiry sweep now
// POST /api/v1/admin/bookings/expire
func (h *AdminHandler) ExpireBookings(c *gin.Context) {
	expired := h.sweeper.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": "Expiry sweep completed",
		"expired": expired,
	})
}

// ReleaseOrphans returns seats held by reservations that never became bookings
// POST /api/v1/admin/reservations/release-orphans
func (h *AdminHandler) ReleaseOrphans(c *gin.Context) {
	released, err := h.scheduler.RunReleaseOrphansNow(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Orphan reservations released",
		"released": released,
	})
}

// CronStatus GET /api/v1/admin/cron/status
func (h *AdminHandler) CronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.GetJobStatus())
}

// AuditTrail lists audit records for an entity
// GET /api/v1/admin/audit/:entity_type/:entity_id
func (h *AdminHandler) AuditTrail(c *gin.Context) {
	entityID, ok := pathUUID(c, "entity_id")
	if !ok {
		return
	}

	logs, err := h.trail.Trail(c.Request.Context(), c.Param("entity_type"), entityID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
