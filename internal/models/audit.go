package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuditAction names something worth keeping an append-only record of
type AuditAction string

const (
	AuditActionBookingCreated   AuditAction = "booking_created"
	AuditActionBookingCancelled AuditAction = "booking_cancelled"
	AuditActionBookingsExpired  AuditAction = "bookings_expired"
	AuditActionPaymentCompleted AuditAction = "payment_completed"
	AuditActionPaymentFailed    AuditAction = "payment_failed"
	AuditActionPaymentRefundDue AuditAction = "payment_refund_due"
	AuditActionTripCreated      AuditAction = "trip_created"
	AuditActionTripStarted      AuditAction = "trip_started"
	AuditActionTripCompleted    AuditAction = "trip_completed"
	AuditActionTripCancelled    AuditAction = "trip_cancelled"
	AuditActionVehicleApproved  AuditAction = "vehicle_approved"
	AuditActionVehicleRejected  AuditAction = "vehicle_rejected"
	AuditActionDriverVerified   AuditAction = "driver_verified"
)

// AuditDetails is free-form context stored as JSONB
type AuditDetails map[string]interface{}

// Value implements the driver.Valuer interface
func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements the sql.Scanner interface
func (d *AuditDetails) Scan(value interface{}) error {
	if value == nil {
		*d = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed for AuditDetails")
	}
	return json.Unmarshal(b, d)
}

// AuditLog is a single audit record
type AuditLog struct {
	ID         uuid.UUID    `json:"id" db:"id"`
	UserID     *uuid.UUID   `json:"user_id,omitempty" db:"user_id"`
	Action     AuditAction  `json:"action" db:"action"`
	EntityType string       `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID   `json:"entity_id,omitempty" db:"entity_id"`
	IPAddress  *string      `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string      `json:"user_agent,omitempty" db:"user_agent"`
	Details    AuditDetails `json:"details,omitempty" db:"details"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
