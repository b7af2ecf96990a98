package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus represents the lifecycle state of a trip
type TripStatus string

const (
	TripStatusNotStarted TripStatus = "not_started"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// Trip is a scheduled run of a sacco vehicle with a finite seat inventory
type Trip struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	SaccoID        uuid.UUID  `json:"sacco_id" db:"sacco_id"`
	VehicleID      uuid.UUID  `json:"vehicle_id" db:"vehicle_id"`
	DriverID       uuid.UUID  `json:"driver_id" db:"driver_id"`
	RouteRegion    string     `json:"route_region" db:"route_region"`
	DepartureAt    time.Time  `json:"departure_at" db:"departure_at"`
	TotalSeats     int        `json:"total_seats" db:"total_seats"`
	AvailableSeats int        `json:"available_seats" db:"available_seats"`
	CostPerSeat    int64      `json:"cost_per_seat" db:"cost_per_seat"`
	Status         TripStatus `json:"status" db:"status"`
	Version        int64      `json:"version" db:"version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsClosed reports whether the trip no longer accepts reservations
func (t *Trip) IsClosed() bool {
	return t.Status == TripStatusCancelled || t.Status == TripStatusCompleted
}

// HasDeparted reports whether the departure time has passed
func (t *Trip) HasDeparted(now time.Time) bool {
	return !t.DepartureAt.After(now)
}

// IsBookable reports whether parents may still book seats on the trip
func (t *Trip) IsBookable(now time.Time) bool {
	return t.Status == TripStatusNotStarted && !t.HasDeparted(now)
}

// CreateTripRequest is what a sacco submits to schedule a trip
type CreateTripRequest struct {
	VehicleID   uuid.UUID `json:"vehicle_id" binding:"required" validate:"required"`
	DriverID    uuid.UUID `json:"driver_id" binding:"required" validate:"required"`
	RouteRegion string    `json:"route_region" binding:"required" validate:"required,min=2,max=120"`
	DepartureAt time.Time `json:"departure_at" binding:"required" validate:"required"`
	TotalSeats  int       `json:"total_seats" binding:"required" validate:"required,min=1,max=100"`
	CostPerSeat int64     `json:"cost_per_seat" binding:"required" validate:"required,min=1"`
}

// ReservationStatus is the state of a held seat
type ReservationStatus string

const (
	ReservationStatusHeld     ReservationStatus = "held"
	ReservationStatusBooked   ReservationStatus = "booked"
	ReservationStatusReleased ReservationStatus = "released"
)

// ReservationToken proves a seat was taken from a trip's inventory.
// It must be passed to CreateBooking or released.
type ReservationToken struct {
	ID     uuid.UUID `json:"id"`
	TripID uuid.UUID `json:"trip_id"`
}

// SeatReservation is the persisted record behind a ReservationToken
type SeatReservation struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	TripID    uuid.UUID         `json:"trip_id" db:"trip_id"`
	BookingID *uuid.UUID        `json:"booking_id,omitempty" db:"booking_id"`
	Status    ReservationStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}
