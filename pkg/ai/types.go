package ai

import "context"

// FeedbackInput contains what the reviewer sees of a graded submission.
type FeedbackInput struct {
	QuestionTitle string
	Description   string
	Constraints   string
	Language      string
	Code          string
	PassedTests   int
	TotalTests    int
	// FailedCases describes visible failing cases, one per entry.
	FailedCases []string
	Notes       string
}

// FeedbackResult is the structured review returned by the model.
type FeedbackResult struct {
	Score    float64                `json:"score"`
	Feedback string                 `json:"feedback"`
	Verdict  string                 `json:"verdict"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Reviewer produces feedback on a submission.
type Reviewer interface {
	Review(ctx context.Context, input FeedbackInput) (FeedbackResult, error)
	Provider() string
}
