package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AssessmentRequest is the payload for creating or updating an assessment.
type AssessmentRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	CourseID    uint   `json:"course_id" validate:"required,gt=0"`
	Difficulty  string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	TimeLimit   int    `json:"time_limit" validate:"required,min=1,max=600"`
	MaxMarks    int    `json:"max_marks" validate:"omitempty,min=1"`
	Chances     int    `json:"chances" validate:"required,min=1,max=20"`
	QuestionIDs []uint `json:"question_ids" validate:"required,min=1,unique,dive,gt=0"`
	IsActive    *bool  `json:"is_active"`
}

// AssessmentResponse represents an assessment to API consumers.
type AssessmentResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CourseID    uint      `json:"course_id"`
	Difficulty  string    `json:"difficulty"`
	TimeLimit   int       `json:"time_limit"`
	MaxMarks    int       `json:"max_marks"`
	Chances     int       `json:"chances"`
	QuestionIDs []uint    `json:"question_ids"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAssessmentResponse builds a response DTO from a model.
func NewAssessmentResponse(assessment models.Assessment) AssessmentResponse {
	questionIDs := append([]uint{}, assessment.QuestionIDs...)
	return AssessmentResponse{
		ID:          assessment.ID,
		Title:       assessment.Title,
		Description: assessment.Description,
		CourseID:    assessment.CourseID,
		Difficulty:  assessment.Difficulty,
		TimeLimit:   assessment.TimeLimit,
		MaxMarks:    assessment.MaxMarks,
		Chances:     assessment.Chances,
		QuestionIDs: questionIDs,
		IsActive:    assessment.IsActive,
		CreatedAt:   assessment.CreatedAt,
		UpdatedAt:   assessment.UpdatedAt,
	}
}

// StudentAssessmentResponse is a catalog entry as seen by a student.
type StudentAssessmentResponse struct {
	AssessmentResponse
	QuestionCount    int        `json:"question_count"`
	Completed        bool       `json:"completed"`
	Score            *int       `json:"score,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ChancesRemaining int        `json:"chances_remaining"`
}

// StudentCatalogResponse wraps the student's catalog.
type StudentCatalogResponse struct {
	Items       []StudentAssessmentResponse `json:"items"`
	GeneratedAt time.Time                   `json:"generated_at"`
	CacheHit    bool                        `json:"cache_hit"`
}

// StartAssessmentResponse tells the client where an attempt begins.
type StartAssessmentResponse struct {
	Assessment       AssessmentResponse `json:"assessment"`
	QuestionID       uint               `json:"question_id"`
	TimeRemaining    int                `json:"time_remaining"`
	ChancesRemaining int                `json:"chances_remaining"`
}
