package services

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	phonevalidator "github.com/skulbus/skulbus-backend/pkg/validator"
)

// FleetStore persists vehicles and drivers
type FleetStore interface {
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	GetVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error)
	ListPendingVehicles(ctx context.Context) ([]models.Vehicle, error)
	SetVehicleStatus(ctx context.Context, id uuid.UUID, status models.VehicleStatus) (*models.Vehicle, error)
	CreateDriver(ctx context.Context, driver *models.Driver) error
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	ListUnverifiedDrivers(ctx context.Context) ([]models.Driver, error)
	VerifyDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// FleetService registers sacco vehicles and drivers and handles admin approval
type FleetService struct {
	store    FleetStore
	validate *validator.Validate
	phones   *phonevalidator.PhoneValidator
	logger   *logrus.Logger
}

// NewFleetService creates a new FleetService
func NewFleetService(store FleetStore, logger *logrus.Logger) *FleetService {
	return &FleetService{
		store:    store,
		validate: newValidator(),
		phones:   phonevalidator.NewPhoneValidator(),
		logger:   logger,
	}
}

// RegisterVehicle adds a vehicle to the sacco's fleet, pending admin approval
func (s *FleetService) RegisterVehicle(ctx context.Context, actor models.Actor, req models.RegisterVehicleRequest) (*models.Vehicle, error) {
	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}
	req.PlateNumber = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(req.PlateNumber), " ", ""))
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	vehicle := &models.Vehicle{
		SaccoID:     actor.UserID,
		PlateNumber: req.PlateNumber,
		Capacity:    req.Capacity,
	}
	if err := s.store.CreateVehicle(ctx, vehicle); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"vehicle_id": vehicle.ID, "sacco_id": actor.UserID}).Info("Vehicle registered")
	return vehicle, nil
}

// RegisterDriver adds an unverified driver to the sacco
func (s *FleetService) RegisterDriver(ctx context.Context, actor models.Actor, req models.RegisterDriverRequest) (*models.Driver, error) {
	if !actor.IsSacco() {
		return nil, models.ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	phone, err := s.phones.Validate(req.Phone)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	driver := &models.Driver{
		SaccoID:       actor.UserID,
		Name:          strings.TrimSpace(req.Name),
		Phone:         phone,
		LicenseNumber: strings.ToUpper(strings.TrimSpace(req.LicenseNumber)),
	}
	if err := s.store.CreateDriver(ctx, driver); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"driver_id": driver.ID, "sacco_id": actor.UserID}).Info("Driver registered")
	return driver, nil
}

// PendingApprovals lists vehicles and drivers waiting on an admin
func (s *FleetService) PendingApprovals(ctx context.Context) (*models.PendingApprovals, error) {
	vehicles, err := s.store.ListPendingVehicles(ctx)
	if err != nil {
		return nil, err
	}
	drivers, err := s.store.ListUnverifiedDrivers(ctx)
	if err != nil {
		return nil, err
	}
	return &models.PendingApprovals{Vehicles: vehicles, Drivers: drivers}, nil
}

// ApproveVehicle lets a vehicle run trips
func (s *FleetService) ApproveVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	return s.store.SetVehicleStatus(ctx, id, models.VehicleStatusApproved)
}

// RejectVehicle turns down a pending vehicle
func (s *FleetService) RejectVehicle(ctx context.Context, id uuid.UUID) (*models.Vehicle, error) {
	return s.store.SetVehicleStatus(ctx, id, models.VehicleStatusRejected)
}

// VerifyDriver marks a driver as cleared to drive trips
func (s *FleetService) VerifyDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	return s.store.VerifyDriver(ctx, id)
}
