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

// StudentRepository handles parent-owned students
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new StudentRepository
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create registers a student under a parent
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO students (id, parent_id, school_id, name, destination_region, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`, student.ID, student.ParentID, student.SchoolID, student.Name, student.DestinationRegion).Scan(&student.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// GetByID retrieves a student
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	err := r.db.GetContext(ctx, &student, `
		SELECT id, parent_id, school_id, name, destination_region, created_at
		FROM students WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

// ListByParent returns a parent's students
func (r *StudentRepository) ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Student, error) {
	students := []models.Student{}
	err := r.db.SelectContext(ctx, &students, `
		SELECT id, parent_id, school_id, name, destination_region, created_at
		FROM students WHERE parent_id = $1 ORDER BY name ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}
