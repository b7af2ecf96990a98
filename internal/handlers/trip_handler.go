package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// TripUseCases is the trip service surface used over HTTP
type TripUseCases interface {
	CreateTrip(ctx context.Context, actor models.Actor, req models.CreateTripRequest) (*models.Trip, error)
	StartTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error)
	CompleteTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error)
	CancelTrip(ctx context.Context, actor models.Actor, tripID uuid.UUID) (*models.Trip, error)
	ListBookableTrips(ctx context.Context, region string) ([]models.Trip, error)
	ListSaccoTrips(ctx context.Context, actor models.Actor) ([]models.Trip, error)
	ListTripBookings(ctx context.Context, actor models.Actor, tripID uuid.UUID) ([]models.BookingDetails, error)
}

// TripHandler serves trip browsing and the sacco trip lifecycle
type TripHandler struct {
	trips TripUseCases
	audit AuditRecorder
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(trips TripUseCases, audit AuditRecorder) *TripHandler {
	return &TripHandler{trips: trips, audit: audit}
}

// ListBookable lists future trips with open booking, optionally filtered by ?region=
// GET /api/v1/trips/bookable
func (h *TripHandler) ListBookable(c *gin.Context) {
	trips, err := h.trips.ListBookableTrips(c.Request.Context(), c.Query("region"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips, "count": len(trips)})
}

// CreateTrip schedules a trip
// POST /api/v1/sacco/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	trip, err := h.trips.CreateTrip(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, models.AuditActionTripCreated, "trip", trip.ID, models.AuditDetails{
		"vehicle_id":  trip.VehicleID.String(),
		"total_seats": trip.TotalSeats,
	})
	c.JSON(http.StatusCreated, trip)
}

// ListSaccoTrips lists the sacco's trips
// GET /api/v1/sacco/trips
func (h *TripHandler) ListSaccoTrips(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	trips, err := h.trips.ListSaccoTrips(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips, "count": len(trips)})
}

// ListTripBookings lists bookings on one of the sacco's trips
// GET /api/v1/sacco/trips/:id/bookings
func (h *TripHandler) ListTripBookings(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	bookings, err := h.trips.ListTripBookings(c.Request.Context(), actor, tripID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// StartTrip POST /api/v1/sacco/trips/:id/start
func (h *TripHandler) StartTrip(c *gin.Context) {
	h.changeStatus(c, h.trips.StartTrip, models.AuditActionTripStarted)
}

// CompleteTrip POST /api/v1/sacco/trips/:id/complete
func (h *TripHandler) CompleteTrip(c *gin.Context) {
	h.changeStatus(c, h.trips.CompleteTrip, models.AuditActionTripCompleted)
}

// CancelTrip POST /api/v1/sacco/trips/:id/cancel
func (h *TripHandler) CancelTrip(c *gin.Context) {
	h.changeStatus(c, h.trips.CancelTrip, models.AuditActionTripCancelled)
}

func (h *TripHandler) changeStatus(
	c *gin.Context,
	apply func(context.Context, models.Actor, uuid.UUID) (*models.Trip, error),
	action models.AuditAction,
) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	tripID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	trip, err := apply(c.Request.Context(), actor, tripID)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, action, "trip", trip.ID, models.AuditDetails{"status": string(trip.Status)})
	c.JSON(http.StatusOK, trip)
}
