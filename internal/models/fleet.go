package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleStatus is the admin approval state of a vehicle
type VehicleStatus string

const (
	VehicleStatusPending  VehicleStatus = "pending"
	VehicleStatusApproved VehicleStatus = "approved"
	VehicleStatusRejected VehicleStatus = "rejected"
)

// Vehicle is a sacco-owned vehicle that can run trips once approved
type Vehicle struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	SaccoID     uuid.UUID     `json:"sacco_id" db:"sacco_id"`
	PlateNumber string        `json:"plate_number" db:"plate_number"`
	Capacity    int           `json:"capacity" db:"capacity"`
	Status      VehicleStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Driver is a sacco driver; only verified drivers can be assigned trips
type Driver struct {
	ID            uuid.UUID `json:"id" db:"id"`
	SaccoID       uuid.UUID `json:"sacco_id" db:"sacco_id"`
	Name          string    `json:"name" db:"name"`
	Phone         string    `json:"phone" db:"phone"`
	LicenseNumber string    `json:"license_number" db:"license_number"`
	Verified      bool      `json:"verified" db:"verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// RegisterVehicleRequest is the payload for adding a vehicle
type RegisterVehicleRequest struct {
	PlateNumber string `json:"plate_number" binding:"required" validate:"required,min=4,max=12"`
	Capacity    int    `json:"capacity" binding:"required" validate:"required,min=1,max=100"`
}

// RegisterDriverRequest is the payload for adding a driver
type RegisterDriverRequest struct {
	Name          string `json:"name" binding:"required" validate:"required,min=2,max=100"`
	Phone         string `json:"phone" binding:"required" validate:"required"`
	LicenseNumber string `json:"license_number" binding:"required" validate:"required,min=4,max=20"`
}

// PendingApprovals lists fleet items waiting on an admin
type PendingApprovals struct {
	Vehicles []Vehicle `json:"vehicles"`
	Drivers  []Driver  `json:"drivers"`
}
