package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skulbus/skulbus-backend/internal/models"
)

const (
	vehicleColumns = `id, sacco_id, plate_number, capacity, status, created_at, updated_at`
	driverColumns  = `id, sacco_id, name, phone, license_number, verified, created_at, updated_at`
)

// FleetRepository handles sacco vehicles and drivers
type FleetRepository struct {
	db *sqlx.DB
}

// NewFleetRepository creates a new FleetRepository
func NewFleetRepository(db *sqlx.DB) *FleetRepository {
	return &FleetRepository{db: db}
}

// CreateVehicle registers a vehicle awaiting approval
func (r *FleetRepository) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == uuid.Nil {
		vehicle.ID = uuid.New()
	}
	vehicle.Status = models.VehicleStatusPending

	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO vehicles (id, sacco_id, plate_number, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, vehicle.ID, vehicle.SaccoID, vehicle.PlateNumber, vehicle.Capacity, vehicle.Status,
	).Scan(&vehicle.CreatedAt, &vehicle.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return models.ErrDuplicatePlate
		}
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

// GetVehicle retrieves a vehicle
func (r *FleetRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.GetContext(ctx, &vehicle, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &vehicle, nil
}

// ListPendingVehicles returns vehicles waiting on admin approval, oldest first
func (r *FleetRepository) ListPendingVehicles(ctx context.Context) ([]models.Vehicle, error) {
	vehicles := []models.Vehicle{}
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE status = 'pending' ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &vehicles, query); err != nil {
		return nil, fmt.Errorf("failed to list pending vehicles: %w", err)
	}
	return vehicles, nil
}

// SetVehicleStatus approves or rejects a pending vehicle
func (r *FleetRepository) SetVehicleStatus(ctx context.Context, id uuid.UUID, status models.VehicleStatus) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.GetContext(ctx, &vehicle, `
		UPDATE vehicles SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+vehicleColumns, id, status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetVehicle(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, models.ErrApprovalNotPending
		}
		return nil, fmt.Errorf("failed to update vehicle status: %w", err)
	}
	return &vehicle, nil
}

// CreateDriver registers an unverified driver
func (r *FleetRepository) CreateDriver(ctx context.Context, driver *models.Driver) error {
	if driver.ID == uuid.Nil {
		driver.ID = uuid.New()
	}
	driver.Verified = false

	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO drivers (id, sacco_id, name, phone, license_number, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
		RETURNING created_at, updated_at
	`, driver.ID, driver.SaccoID, driver.Name, driver.Phone, driver.LicenseNumber,
	).Scan(&driver.CreatedAt, &driver.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return models.ErrDuplicateLicense
		}
		return fmt.Errorf("failed to create driver: %w", err)
	}
	return nil
}

// GetDriver retrieves a driver
func (r *FleetRepository) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	err := r.db.GetContext(ctx, &driver, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return &driver, nil
}

// ListUnverifiedDrivers returns drivers waiting on admin verification
func (r *FleetRepository) ListUnverifiedDrivers(ctx context.Context) ([]models.Driver, error) {
	drivers := []models.Driver{}
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE verified = FALSE ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &drivers, query); err != nil {
		return nil, fmt.Errorf("failed to list unverified drivers: %w", err)
	}
	return drivers, nil
}

// VerifyDriver marks a driver verified; verifying twice is a no-op
func (r *FleetRepository) VerifyDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	var driver models.Driver
	err := r.db.GetContext(ctx, &driver, `
		UPDATE drivers SET verified = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+driverColumns, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to verify driver: %w", err)
	}
	return &driver, nil
}
