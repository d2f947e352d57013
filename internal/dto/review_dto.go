package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ReviewResponse is the per-question report of a completed assessment.
type ReviewResponse struct {
	ID             uint                 `json:"id"`
	UserID         uint                 `json:"user_id"`
	AssessmentID   uint                 `json:"assessment_id"`
	Items          []grading.ReviewItem `json:"items"`
	TotalScore     int                  `json:"total_score"`
	CompletedCount int                  `json:"completed_count"`
	AcceptedCount  int                  `json:"accepted_count"`
	TotalQuestions int                  `json:"total_questions"`
	AvgExecMs      int64                `json:"avg_exec_ms"`
	ExportURL      string               `json:"export_url,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// NewReviewResponse builds a response DTO from a model.
func NewReviewResponse(review models.AssessmentReview) ReviewResponse {
	items := append([]grading.ReviewItem{}, review.Items...)
	return ReviewResponse{
		ID:             review.ID,
		UserID:         review.UserID,
		AssessmentID:   review.AssessmentID,
		Items:          items,
		TotalScore:     review.TotalScore,
		CompletedCount: review.CompletedCount,
		AcceptedCount:  review.AcceptedCount,
		TotalQuestions: review.TotalQuestions,
		AvgExecMs:      review.AvgExecMs,
		ExportURL:      review.ExportURL,
		CreatedAt:      review.CreatedAt,
	}
}

// CompletionEntry is one value of a user's completion map.
type CompletionEntry struct {
	Score       int       `json:"score"`
	AvgExecMs   int64     `json:"avg_exec_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionMap is keyed by assessment id.
type CompletionMap map[string]CompletionEntry

// ExportResponse points at an exported review workbook.
type ExportResponse struct {
	ReviewID  uint   `json:"review_id"`
	ExportURL string `json:"export_url"`
}
