package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/internal/utils"
)

const auditTrailLimit = 200

// AuditStore appends and reads audit records
type AuditStore interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error)
}

// AuditEntry is a booking or payment action to be recorded
type AuditEntry struct {
	UserID     *uuid.UUID
	Action     models.AuditAction
	EntityType string
	EntityID   *uuid.UUID
	IPAddress  string
	UserAgent  string
	Details    models.AuditDetails
}

// AuditService keeps the append-only audit trail
type AuditService struct {
	store  AuditStore
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore, logger *logrus.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

// Record stores an audit entry. Failures are logged and never fail the caller.
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	details := e.Details
	if details == nil {
		details = models.AuditDetails{}
	}
	if e.UserAgent != "" {
		details["device"] = utils.ParseUserAgent(e.UserAgent).Summary()
	}

	entry := &models.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		IPAddress:  optional(e.IPAddress),
		UserAgent:  optional(e.UserAgent),
		Details:    details,
	}
	if err := s.store.Insert(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WithError(err).WithField("action", e.Action).Error("AUDIT ERROR: failed to record entry")
	}
}

// Trail returns the newest audit records for one entity
func (s *AuditService) Trail(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	return s.store.ListByEntity(ctx, entityType, entityID, auditTrailLimit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
