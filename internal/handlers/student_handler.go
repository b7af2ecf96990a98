package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
)

// StudentStore persists parent-owned students
type StudentStore interface {
	Create(ctx context.Context, student *models.Student) error
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]models.Student, error)
}

// StudentHandler serves the parent's student registry
type StudentHandler struct {
	students StudentStore
}

// NewStudentHandler creates a new StudentHandler
func NewStudentHandler(students StudentStore) *StudentHandler {
	return &StudentHandler{students: students}
}

// CreateStudent registers a student under the calling parent
// POST /api/v1/students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !actor.IsParent() {
		respondError(c, models.ErrForbidden)
		return
	}

	var req models.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	student := &models.Student{
		ParentID:          actor.UserID,
		SchoolID:          req.SchoolID,
		Name:              strings.TrimSpace(req.Name),
		DestinationRegion: strings.TrimSpace(req.DestinationRegion),
	}
	if err := h.students.Create(c.Request.Context(), student); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

// ListStudents lists the calling parent's students
// GET /api/v1/students
func (h *StudentHandler) ListStudents(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !actor.IsParent() {
		respondError(c, models.ErrForbidden)
		return
	}

	students, err := h.students.ListByParent(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students)})
}
