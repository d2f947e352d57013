package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

// CodeRequest carries editor content for run, save and submit.
type CodeRequest struct {
	Code string `json:"code" validate:"max=65536"`
}

// TestResultResponse is one graded test case. Hidden cases omit their data.
type TestResultResponse struct {
	Input         string `json:"input,omitempty"`
	Expected      string `json:"expected,omitempty"`
	Actual        string `json:"actual,omitempty"`
	Passed        bool   `json:"passed"`
	ExecutionTime int64  `json:"execution_time"`
	Error         string `json:"error,omitempty"`
	Hidden        bool   `json:"hidden"`
}

// NewTestResultResponses converts grading results for students.
func NewTestResultResponses(results []grading.Result) []TestResultResponse {
	responses := make([]TestResultResponse, 0, len(results))
	for _, result := range results {
		response := TestResultResponse{
			Passed:        result.Passed,
			ExecutionTime: result.ExecutionTime,
			Error:         result.Error,
			Hidden:        result.Hidden,
		}
		if !result.Hidden {
			response.Input = result.Input
			response.Expected = result.Expected
			response.Actual = result.Actual
		}
		responses = append(responses, response)
	}
	return responses
}

// ScoreResponse summarises a run.
type ScoreResponse struct {
	PassedTests     int    `json:"passed_tests"`
	TotalTests      int    `json:"total_tests"`
	Score           int    `json:"score"`
	Status          string `json:"status"`
	EarnedMarks     int    `json:"earned_marks"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// NewScoreResponse converts a grading score.
func NewScoreResponse(score grading.Score) ScoreResponse {
	return ScoreResponse{
		PassedTests:     score.PassedTests,
		TotalTests:      score.TotalTests,
		Score:           score.Percentage,
		Status:          score.Status,
		EarnedMarks:     score.EarnedMarks,
		ExecutionTimeMs: score.ExecutionTimeMs,
	}
}

// QuestionSessionResponse is the editor state when entering or resetting a question.
type QuestionSessionResponse struct {
	AssessmentID  uint                 `json:"assessment_id"`
	Question      QuestionResponse     `json:"question"`
	Code          string               `json:"code"`
	State         string               `json:"state"`
	TimeRemaining int                  `json:"time_remaining"`
	TestResults   []TestResultResponse `json:"test_results"`
	Restored      bool                 `json:"restored"`
	LastSaved     *time.Time           `json:"last_saved,omitempty"`
}

// RunResponse is returned after running code against the test cases.
type RunResponse struct {
	State         string               `json:"state"`
	Results       []TestResultResponse `json:"results"`
	Score         ScoreResponse        `json:"score"`
	TimeRemaining int                  `json:"time_remaining"`
}

// SubmitResponse is returned after submitting a question.
type SubmitResponse struct {
	SubmissionID   uint            `json:"submission_id"`
	Score          ScoreResponse   `json:"score"`
	NextQuestionID *uint           `json:"next_question_id,omitempty"`
	Completed      bool            `json:"completed"`
	Review         *ReviewResponse `json:"review,omitempty"`
}

// SaveResponse acknowledges a manual snapshot flush.
type SaveResponse struct {
	LastSaved     time.Time `json:"last_saved"`
	TimeRemaining int       `json:"time_remaining"`
}

// RestartResponse acknowledges a session restart.
type RestartResponse struct {
	Cleared       int `json:"cleared"`
	TimeRemaining int `json:"time_remaining"`
}
