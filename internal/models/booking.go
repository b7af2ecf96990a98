package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// IsTerminal reports whether no further transitions are possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// BookingEvent drives the booking state machine
type BookingEvent string

const (
	BookingEventPaymentCompleted BookingEvent = "payment_completed"
	BookingEventCancel           BookingEvent = "cancel"
	BookingEventExpire           BookingEvent = "expire"
	BookingEventTripCompleted    BookingEvent = "trip_completed"
	BookingEventTripCancelled    BookingEvent = "trip_cancelled"
)

// NextBookingStatus applies event to current and returns the resulting status.
// departed is only consulted when cancelling a confirmed booking.
//
//	pending   --payment_completed-->           confirmed
//	pending   --cancel|expire|trip_cancelled--> cancelled
//	confirmed --trip_completed-->              completed
//	confirmed --cancel (before departure)-->   cancelled
//	confirmed --trip_cancelled-->              cancelled
func NextBookingStatus(current BookingStatus, event BookingEvent, departed bool) (BookingStatus, error) {
	switch current {
	case BookingStatusPending:
		switch event {
		case BookingEventPaymentCompleted:
			return BookingStatusConfirmed, nil
		case BookingEventCancel, BookingEventExpire, BookingEventTripCancelled:
			return BookingStatusCancelled, nil
		}
	case BookingStatusConfirmed:
		switch event {
		case BookingEventTripCompleted:
			return BookingStatusCompleted, nil
		case BookingEventTripCancelled:
			return BookingStatusCancelled, nil
		case BookingEventCancel:
			if departed {
				return current, InvalidTransitionf("confirmed booking cannot be cancelled after departure")
			}
			return BookingStatusCancelled, nil
		}
	}
	return current, InvalidTransitionf("%s is not allowed from %s", event, current)
}

// Booking is a student's seat on a trip
type Booking struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	TripID             uuid.UUID     `json:"trip_id" db:"trip_id"`
	StudentID          uuid.UUID     `json:"student_id" db:"student_id"`
	ParentID           uuid.UUID     `json:"parent_id" db:"parent_id"`
	ReservationID      uuid.UUID     `json:"reservation_id" db:"reservation_id"`
	Fare               int64         `json:"fare" db:"fare"`
	Status             BookingStatus `json:"status" db:"status"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// IsActive reports whether the booking still holds a seat
func (b *Booking) IsActive() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// BookingDetails is the read projection shown to parents and saccos
type BookingDetails struct {
	Booking
	RouteRegion   string         `json:"route_region" db:"route_region"`
	DepartureAt   time.Time      `json:"departure_at" db:"departure_at"`
	TripStatus    TripStatus     `json:"trip_status" db:"trip_status"`
	StudentName   string         `json:"student_name" db:"student_name"`
	PaymentStatus *PaymentStatus `json:"payment_status,omitempty" db:"payment_status"`
}

// CreateBookingRequest is the parent's booking request
type CreateBookingRequest struct {
	TripID    uuid.UUID `json:"trip_id" binding:"required"`
	StudentID uuid.UUID `json:"student_id" binding:"required"`
}

// CancelBookingRequest carries an optional reason for the cancellation
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}
