package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is a child registered by a parent for school transport
type Student struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ParentID          uuid.UUID `json:"parent_id" db:"parent_id"`
	SchoolID          uuid.UUID `json:"school_id" db:"school_id"`
	Name              string    `json:"name" db:"name"`
	DestinationRegion string    `json:"destination_region" db:"destination_region"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// CreateStudentRequest is the payload for registering a student
type CreateStudentRequest struct {
	SchoolID          uuid.UUID `json:"school_id" binding:"required"`
	Name              string    `json:"name" binding:"required,min=2,max=100"`
	DestinationRegion string    `json:"destination_region" binding:"required,max=120"`
}
