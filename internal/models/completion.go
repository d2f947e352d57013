package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

// AssessmentCompletion records that a user finished an assessment and the final score.
type AssessmentCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_completion_user_assessment" json:"user_id"`
	AssessmentID uint      `gorm:"not null;uniqueIndex:idx_completion_user_assessment" json:"assessment_id"`
	Score        int       `gorm:"not null" json:"score"`
	AvgExecMs    int64     `gorm:"not null;default:0" json:"avg_exec_ms"`
	CompletedAt  time.Time `json:"completed_at"`
}

// AssessmentReview is the per-question report written at completion.
type AssessmentReview struct {
	ID             uint                                  `gorm:"primaryKey" json:"id"`
	UserID         uint                                  `gorm:"not null;uniqueIndex:idx_review_user_assessment" json:"user_id"`
	AssessmentID   uint                                  `gorm:"not null;uniqueIndex:idx_review_user_assessment" json:"assessment_id"`
	Items          datatypes.JSONSlice[grading.ReviewItem] `json:"items"`
	TotalScore     int                                   `gorm:"not null" json:"total_score"`
	CompletedCount int                                   `gorm:"not null" json:"completed_count"`
	AcceptedCount  int                                   `gorm:"not null" json:"accepted_count"`
	TotalQuestions int                                   `gorm:"not null" json:"total_questions"`
	AvgExecMs      int64                                 `gorm:"not null;default:0" json:"avg_exec_ms"`
	ExportURL      string                                `gorm:"size:512" json:"export_url,omitempty"`
	CreatedAt      time.Time                             `json:"created_at"`
	UpdatedAt      time.Time                             `json:"updated_at"`
}

// NewAssessmentReview materialises a computed review for storage.
func NewAssessmentReview(userID, assessmentID uint, review grading.Review) AssessmentReview {
	return AssessmentReview{
		UserID:         userID,
		AssessmentID:   assessmentID,
		Items:          review.Items,
		TotalScore:     review.TotalScore,
		CompletedCount: review.CompletedCount,
		AcceptedCount:  review.AcceptedCount,
		TotalQuestions: review.TotalQuestions,
		AvgExecMs:      review.AvgExecMs,
	}
}
