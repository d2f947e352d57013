package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// CourseRequest is the payload for creating or updating a course.
type CourseRequest struct {
	Code        string `json:"code" validate:"required,min=2,max=64"`
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	IsActive    *bool  `json:"is_active"`
}

// EnrollmentRequest enrolls or unenrolls a student.
type EnrollmentRequest struct {
	UserID uint `json:"user_id" validate:"required,gt=0"`
}

// CourseResponse represents a course to API consumers.
type CourseResponse struct {
	ID          uint      `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCourseResponse builds a response DTO from a model.
func NewCourseResponse(course models.Course) CourseResponse {
	return CourseResponse{
		ID:          course.ID,
		Code:        course.Code,
		Title:       course.Title,
		Description: course.Description,
		IsActive:    course.IsActive,
		CreatedAt:   course.CreatedAt,
		UpdatedAt:   course.UpdatedAt,
	}
}
