package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the outcome of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	// charged by the gateway after the booking stopped accepting payment
	PaymentStatusRefundDue PaymentStatus = "refund_due"
)

// PaymentMethod identifies the channel used to pay
type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
)

// Payment is a recorded payment attempt against a booking.
// Completed payments are never modified.
type Payment struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	BookingID      uuid.UUID     `json:"booking_id" db:"booking_id"`
	Amount         int64         `json:"amount" db:"amount"`
	Status         PaymentStatus `json:"status" db:"status"`
	Method         PaymentMethod `json:"method" db:"method"`
	Phone          string        `json:"phone" db:"phone"`
	TransactionRef *string       `json:"transaction_ref,omitempty" db:"transaction_ref"`
	FailureReason  *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	PaidAt         *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// PaymentOutcome is what the payment gateway reports for a charge
type PaymentOutcome struct {
	Success        bool   `json:"success"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Message        string `json:"message,omitempty"`
}

// RecordPaymentInput is everything the recorder needs to persist an outcome
type RecordPaymentInput struct {
	BookingID uuid.UUID
	Amount    int64
	Method    PaymentMethod
	Phone     string
	Outcome   PaymentOutcome
}

// PayBookingRequest is the parent's payment request.
// Amount is optional; when present it must match the booking fare.
type PayBookingRequest struct {
	Phone  string `json:"phone" binding:"required"`
	Amount *int64 `json:"amount,omitempty"`
}

// PaymentReceipt is the joined view rendered onto a printable receipt
type PaymentReceipt struct {
	Payment
	ParentID    uuid.UUID `db:"parent_id"`
	StudentName string    `db:"student_name"`
	RouteRegion string    `db:"route_region"`
	DepartureAt time.Time `db:"departure_at"`
}
