package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

// Submission is the graded code a student submitted for one question.
type Submission struct {
	ID               uint                              `gorm:"primaryKey" json:"id"`
	UserID           uint                              `gorm:"not null;index:idx_submission_user_assessment" json:"user_id"`
	AssessmentID     uint                              `gorm:"not null;index:idx_submission_user_assessment" json:"assessment_id"`
	QuestionID       uint                              `gorm:"not null;index" json:"question_id"`
	Code             string                            `gorm:"type:text" json:"code"`
	Language         string                            `gorm:"size:32;not null" json:"language"`
	Status           string                            `gorm:"size:32;not null" json:"status"`
	Score            int                               `gorm:"not null;default:0" json:"score"`
	TestCasesResults datatypes.JSONSlice[grading.Result] `json:"test_cases_results"`
	PassedTests      int                               `gorm:"not null;default:0" json:"passed_tests"`
	TotalTests       int                               `gorm:"not null;default:0" json:"total_tests"`
	TimeSpent        int                               `gorm:"not null;default:0" json:"time_spent"`
	ExecutionTimeMs  int64                             `gorm:"not null;default:0" json:"execution_time_ms"`
	SubmittedAt      time.Time                         `gorm:"index" json:"submitted_at"`
}

// Outcome converts the submission into the review input for its question.
func (s Submission) Outcome() grading.QuestionOutcome {
	return grading.QuestionOutcome{
		QuestionID:      s.QuestionID,
		Status:          s.Status,
		PassedTests:     s.PassedTests,
		TotalTests:      s.TotalTests,
		ExecutionTimeMs: s.ExecutionTimeMs,
		Code:            s.Code,
	}
}
