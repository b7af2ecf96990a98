package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// FleetUseCases is the fleet service surface used over HTTP
type FleetUseCases interface {
	RegisterVehicle(ctx context.Context, actor models.Actor, req models.RegisterVehicleRequest) (*models.Vehicle, error)
	RegisterDriver(ctx context.Context, actor models.Actor, req models.RegisterDriverRequest) (*models.Driver, error)
	PendingApprovals(ctx context.Context) (*models.PendingApprovals, error)
	ApproveVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	RejectVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	VerifyDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// FleetHandler serves sacco fleet registration and admin approvals
type FleetHandler struct {
	fleet FleetUseCases
	audit AuditRecorder
}

// NewFleetHandler creates a new FleetHandler
func NewFleetHandler(fleet FleetUseCases, audit AuditRecorder) *FleetHandler {
	return &FleetHandler{fleet: fleet, audit: audit}
}

// RegisterVehicle POST /api/v1/sacco/vehicles
func (h *FleetHandler) RegisterVehicle(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req models.RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	vehicle, err := h.fleet.RegisterVehicle(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// RegisterDriver POST /api/v1/sacco/drivers
func (h *FleetHandler) RegisterDriver(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req models.RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	driver, err := h.fleet.RegisterDriver(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, driver)
}

// PendingApprovals GET /api/v1/admin/approvals/pending
func (h *FleetHandler) PendingApprovals(c *gin.Context) {
	pending, err := h.fleet.PendingApprovals(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// ApproveVehicle POST /api/v1/admin/vehicles/:id/approve
func (h *FleetHandler) ApproveVehicle(c *gin.Context) {
	h.decideVehicle(c, h.fleet.ApproveVehicle, models.AuditActionVehicleApproved)
}

// RejectVehicle POST /api/v1/admin/vehicles/:id/reject
func (h *FleetHandler) RejectVehicle(c *gin.Context) {
	h.decideVehicle(c, h.fleet.RejectVehicle, models.AuditActionVehicleRejected)
}

func (h *FleetHandler) decideVehicle(c *gin.Context, decide func(context.Context, uuid.UUID) (*models.Vehicle, error), action models.AuditAction) {
	vehicleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	vehicle, err := decide(c.Request.Context(), vehicleID)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, action, "vehicle", vehicle.ID, models.AuditDetails{"plate_number": vehicle.PlateNumber})
	c.JSON(http.StatusOK, vehicle)
}

// VerifyDriver POST /api/v1/admin/drivers/:id/verify
func (h *FleetHandler) VerifyDriver(c *gin.Context) {
	driverID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	driver, err := h.fleet.VerifyDriver(c.Request.Context(), driverID)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, models.AuditActionDriverVerified, "driver", driver.ID, nil)
	c.JSON(http.StatusOK, driver)
}
