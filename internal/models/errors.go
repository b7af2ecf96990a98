package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without string matching
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindTransient         ErrorKind = "transient"
	KindValidation        ErrorKind = "validation"
)

// AppError is a domain error carrying a kind and a stable machine-readable code
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func newAppError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

var (
	ErrTripNotFound    = newAppError(KindNotFound, "TRIP_NOT_FOUND", "trip not found")
	ErrBookingNotFound = newAppError(KindNotFound, "BOOKING_NOT_FOUND", "booking not found")
	ErrStudentNotFound = newAppError(KindNotFound, "STUDENT_NOT_FOUND", "student not found")
	ErrPaymentNotFound = newAppError(KindNotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrVehicleNotFound = newAppError(KindNotFound, "VEHICLE_NOT_FOUND", "vehicle not found")
	ErrDriverNotFound  = newAppError(KindNotFound, "DRIVER_NOT_FOUND", "driver not found")

	ErrForbidden = newAppError(KindForbidden, "FORBIDDEN", "you are not allowed to perform this action")

	ErrSeatsExhausted     = newAppError(KindConflict, "SEATS_EXHAUSTED", "no seats left on this trip")
	ErrNoSeatsAvailable   = newAppError(KindConflict, "NO_SEATS_AVAILABLE", "no seats available on this trip")
	ErrDuplicateBooking   = newAppError(KindConflict, "DUPLICATE_BOOKING", "student already has an active booking on this trip")
	ErrAlreadyPaid        = newAppError(KindConflict, "ALREADY_PAID", "booking has already been paid")
	ErrAmountMismatch     = newAppError(KindConflict, "AMOUNT_MISMATCH", "payment amount does not match the booking fare")
	ErrTripClosed         = newAppError(KindConflict, "TRIP_CLOSED", "trip is closed")
	ErrTripNotBookable    = newAppError(KindConflict, "TRIP_NOT_BOOKABLE", "trip is not open for booking")
	ErrReservationNotHeld = newAppError(KindConflict, "RESERVATION_NOT_HELD", "seat reservation is no longer held")
	ErrDuplicatePlate     = newAppError(KindConflict, "DUPLICATE_PLATE_NUMBER", "a vehicle with this plate number already exists")
	ErrDuplicateLicense   = newAppError(KindConflict, "DUPLICATE_LICENSE_NUMBER", "a driver with this license number already exists")
	ErrReceiptUnavailable = newAppError(KindConflict, "RECEIPT_UNAVAILABLE", "receipts are only issued for completed payments")
	ErrApprovalNotPending = newAppError(KindConflict, "APPROVAL_NOT_PENDING", "vehicle is not awaiting approval")
	ErrFleetNotApproved   = newAppError(KindConflict, "FLEET_NOT_APPROVED", "vehicle must be approved and driver verified")
	ErrCapacityExceeded   = newAppError(KindConflict, "CAPACITY_EXCEEDED", "total seats exceed vehicle capacity")
	ErrInvalidTransition  = newAppError(KindInvalidTransition, "INVALID_TRANSITION", "transition not allowed from the current state")
	ErrTransient          = newAppError(KindTransient, "TRANSIENT", "the resource is busy, please retry")
)

// NewValidationError builds a validation error with a caller supplied message
func NewValidationError(message string) error {
	return newAppError(KindValidation, "VALIDATION_ERROR", message)
}

// InvalidTransitionf wraps ErrInvalidTransition with detail about the rejected move
func InvalidTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

// AsAppError extracts the AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of a domain error, or an empty kind for unclassified errors
func KindOf(err error) ErrorKind {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Kind
	}
	return ""
}

// IsTransient reports whether the operation can be retried as-is
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
