package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// BookingUseCases is the booking service surface used over HTTP
type BookingUseCases interface {
	BookTrip(ctx context.Context, actor models.Actor, studentID, tripID uuid.UUID) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (*models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error)
	ListMyBookings(ctx context.Context, actor models.Actor) ([]models.BookingDetails, error)
}

// PaymentUseCases charges bookings
type PaymentUseCases interface {
	Pay(ctx context.Context, actor models.Actor, bookingID uuid.UUID, req models.PayBookingRequest) (*models.Payment, error)
	ListPayments(ctx context.Context, actor models.Actor, bookingID uuid.UUID) ([]models.Payment, error)
}

// ReceiptRenderer produces PDF receipts
type ReceiptRenderer interface {
	Render(ctx context.Context, actor models.Actor, paymentID uuid.UUID) ([]byte, error)
}

// BookingHandler serves the parent booking and payment endpoints
type BookingHandler struct {
	bookings BookingUseCases
	payments PaymentUseCases
	receipts ReceiptRenderer
	audit    AuditRecorder
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingUseCases, payments PaymentUseCases, receipts ReceiptRenderer, audit AuditRecorder) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		payments: payments,
		receipts: receipts,
		audit:    audit,
	}
}

// CreateBooking books a seat for one of the parent's students
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.bookings.BookTrip(c.Request.Context(), actor, req.StudentID, req.TripID)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, models.AuditActionBookingCreated, "booking", booking.ID, models.AuditDetails{
		"trip_id":    booking.TripID.String(),
		"student_id": booking.StudentID.String(),
		"fare":       booking.Fare,
	})
	c.JSON(http.StatusCreated, booking)
}

// ListMyBookings lists the parent's bookings
// GET /api/v1/bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListMyBookings(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// GetBooking returns a single booking
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a booking and returns its seat.
// Serves both the parent route and the admin override.
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), actor, bookingID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	recordAudit(c, h.audit, models.AuditActionBookingCancelled, "booking", booking.ID, models.AuditDetails{
		"reason": req.Reason,
	})
	c.JSON(http.StatusOK, booking)
}

// PayBooking charges the booking fare through M-Pesa
// POST /api/v1/bookings/:id/pay
func (h *BookingHandler) PayBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.PayBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	payment, err := h.payments.Pay(c.Request.Context(), actor, bookingID, req)
	if err != nil {
		if payment != nil && payment.Status == models.PaymentStatusRefundDue {
			recordAudit(c, h.audit, models.AuditActionPaymentRefundDue, "payment", payment.ID, models.AuditDetails{
				"booking_id": bookingID.String(),
				"amount":     payment.Amount,
				"reason":     err.Error(),
			})
		}
		respondError(c, err)
		return
	}

	action := models.AuditActionPaymentCompleted
	status := http.StatusOK
	if payment.Status != models.PaymentStatusCompleted {
		action = models.AuditActionPaymentFailed
		status = http.StatusPaymentRequired
	}
	recordAudit(c, h.audit, action, "payment", payment.ID, models.AuditDetails{
		"booking_id": bookingID.String(),
		"amount":     payment.Amount,
	})
	c.JSON(status, payment)
}

// ListBookingPayments lists every payment attempt made against a booking
// GET /api/v1/bookings/:id/payments
func (h *BookingHandler) ListBookingPayments(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"count":    len(payments),
	})
}

// GetReceipt streams the PDF receipt of a completed payment
// GET /api/v1/payments/:id/receipt
func (h *BookingHandler) GetReceipt(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	pdf, err := h.receipts.Render(c.Request.Context(), actor, paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, paymentID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
