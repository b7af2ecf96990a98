package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skulbus/skulbus-backend/internal/models"
)

const paymentColumns = `id, booking_id, amount, status, method, phone, transaction_ref,
	failure_reason, paid_at, created_at`

// completedPaymentConstraint is the partial unique index over booking_id WHERE status = 'completed'
const completedPaymentConstraint = "payments_booking_completed_key"

// PaymentRepository records payment outcomes against bookings
type PaymentRepository struct {
	db       *sqlx.DB
	bookings *BookingRepository
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB, bookings *BookingRepository) *PaymentRepository {
	return &PaymentRepository{db: db, bookings: bookings}
}

// RecordPayment persists a gateway outcome. A successful outcome confirms the
// booking in the same transaction; a failed one leaves it pending for a retry.
//
// A successful charge that arrives after the booking was paid or stopped being
// pending is still stored as a refund_due row and returned together with
// ErrAlreadyPaid or ErrInvalidTransition.
func (r *PaymentRepository) RecordPayment(ctx context.Context, in models.RecordPaymentInput) (*models.Payment, *models.Booking, error) {
	var (
		payment   *models.Payment
		booking   *models.Booking
		settleErr error
	)

	err := withTx(ctx, r.db, r.bookings.trips.lockTimeout, func(tx *sqlx.Tx) error {
		b, err := r.bookings.lockBooking(ctx, tx, in.BookingID)
		if err != nil {
			return err
		}

		var completed int
		err = tx.GetContext(ctx, &completed,
			`SELECT COUNT(*) FROM payments WHERE booking_id = $1 AND status = 'completed'`, b.ID)
		if err != nil {
			return fmt.Errorf("failed to check existing payments: %w", err)
		}

		var rejected error
		switch {
		case completed > 0:
			rejected = models.ErrAlreadyPaid
		case b.Status != models.BookingStatusPending:
			rejected = models.InvalidTransitionf("booking is %s, only pending bookings can be paid", b.Status)
		case in.Amount != b.Fare:
			return fmt.Errorf("%w: expected %d, got %d", models.ErrAmountMismatch, b.Fare, in.Amount)
		}
		if rejected != nil && !in.Outcome.Success {
			return rejected
		}

		p := &models.Payment{
			ID:        uuid.New(),
			BookingID: b.ID,
			Amount:    in.Amount,
			Method:    in.Method,
			Phone:     in.Phone,
		}
		if in.Outcome.TransactionRef != "" {
			p.TransactionRef = &in.Outcome.TransactionRef
		}
		switch {
		case rejected != nil:
			now := time.Now()
			reason := "charged after settlement: " + rejected.Error()
			p.Status = models.PaymentStatusRefundDue
			p.PaidAt = &now
			p.FailureReason = &reason
		case in.Outcome.Success:
			now := time.Now()
			p.Status = models.PaymentStatusCompleted
			p.PaidAt = &now
		default:
			p.Status = models.PaymentStatusFailed
			reason := in.Outcome.Message
			if reason == "" {
				reason = "payment declined"
			}
			p.FailureReason = &reason
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO payments (
				id, booking_id, amount, status, method, phone, transaction_ref, failure_reason, paid_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			RETURNING created_at
		`, p.ID, p.BookingID, p.Amount, p.Status, p.Method, p.Phone,
			p.TransactionRef, p.FailureReason, p.PaidAt,
		).Scan(&p.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, completedPaymentConstraint) {
				return models.ErrAlreadyPaid
			}
			return fmt.Errorf("failed to record payment: %w", err)
		}

		if p.Status == models.PaymentStatusCompleted {
			if err := r.bookings.applyEvent(ctx, tx, b, models.BookingEventPaymentCompleted, false, ""); err != nil {
				return err
			}
		}

		payment, booking, settleErr = p, b, rejected
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payment, booking, settleErr
}

// ListByBooking returns every payment attempt for a booking, newest first
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	payments := []models.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &payments, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// GetReceipt loads a payment together with what is printed on its receipt
func (r *PaymentRepository) GetReceipt(ctx context.Context, paymentID uuid.UUID) (*models.PaymentReceipt, error) {
	query := `
		SELECT p.id, p.booking_id, p.amount, p.status, p.method, p.phone, p.transaction_ref,
			p.failure_reason, p.paid_at, p.created_at,
			b.parent_id, s.name AS student_name, t.route_region, t.departure_at
		FROM payments p
		JOIN bookings b ON b.id = p.booking_id
		JOIN students s ON s.id = b.student_id
		JOIN trips t ON t.id = b.trip_id
		WHERE p.id = $1
	`
	var receipt models.PaymentReceipt
	if err := r.db.GetContext(ctx, &receipt, query, paymentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment receipt: %w", err)
	}
	return &receipt, nil
}
