package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// AuditLogRepository appends audit records
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Insert stores an audit record
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID,
		entry.IPAddress, entry.UserAgent, entry.Details)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail of one entity, newest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error) {
	logs := []models.AuditLog{}
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}
