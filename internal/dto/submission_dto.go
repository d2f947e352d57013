package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SubmissionListRequest filters submission listings.
type SubmissionListRequest struct {
	UserID       uint
	AssessmentID uint
	QuestionID   uint
	Status       string
}

// SubmissionResponse represents a persisted submission.
type SubmissionResponse struct {
	ID              uint                 `json:"id"`
	UserID          uint                 `json:"user_id"`
	AssessmentID    uint                 `json:"assessment_id"`
	QuestionID      uint                 `json:"question_id"`
	Code            string               `json:"code,omitempty"`
	Language        string               `json:"language"`
	Status          string               `json:"status"`
	Score           int                  `json:"score"`
	PassedTests     int                  `json:"passed_tests"`
	TotalTests      int                  `json:"total_tests"`
	TimeSpent       int                  `json:"time_spent"`
	ExecutionTimeMs int64                `json:"execution_time_ms"`
	Results         []TestResultResponse `json:"results"`
	SubmittedAt     time.Time            `json:"submitted_at"`
}

// NewSubmissionResponse builds a response DTO. Hidden test data is masked unless
// includeHidden is set.
func NewSubmissionResponse(submission models.Submission, includeCode, includeHidden bool) SubmissionResponse {
	response := SubmissionResponse{
		ID:              submission.ID,
		UserID:          submission.UserID,
		AssessmentID:    submission.AssessmentID,
		QuestionID:      submission.QuestionID,
		Language:        submission.Language,
		Status:          submission.Status,
		Score:           submission.Score,
		PassedTests:     submission.PassedTests,
		TotalTests:      submission.TotalTests,
		TimeSpent:       submission.TimeSpent,
		ExecutionTimeMs: submission.ExecutionTimeMs,
		SubmittedAt:     submission.SubmittedAt,
	}
	if includeCode {
		response.Code = submission.Code
	}

	response.Results = NewTestResultResponses(submission.TestCasesResults)
	if includeHidden {
		for i, result := range submission.TestCasesResults {
			response.Results[i].Input = result.Input
			response.Results[i].Expected = result.Expected
			response.Results[i].Actual = result.Actual
		}
	}
	return response
}

// FeedbackResponse describes AI feedback on a submission.
type FeedbackResponse struct {
	ID           uint                   `json:"id"`
	SubmissionID uint                   `json:"submission_id"`
	Score        float64                `json:"score"`
	Verdict      string                 `json:"verdict"`
	Feedback     string                 `json:"feedback"`
	Details      map[string]interface{} `json:"details"`
	Provider     string                 `json:"provider"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewFeedbackResponse converts a feedback model.
func NewFeedbackResponse(feedback models.SubmissionFeedback) FeedbackResponse {
	return FeedbackResponse{
		ID:           feedback.ID,
		SubmissionID: feedback.SubmissionID,
		Score:        feedback.Score,
		Verdict:      feedback.Verdict,
		Feedback:     feedback.Feedback,
		Details:      metadataFromJSON(feedback.Details),
		Provider:     feedback.Provider,
		CreatedAt:    feedback.CreatedAt,
	}
}
