package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// TestCaseRequest describes one test case of a question.
type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output" validate:"required"`
	IsHidden       bool   `json:"is_hidden"`
	Marks          int    `json:"marks" validate:"min=0"`
}

// QuestionRequest is the payload for creating or updating a question.
type QuestionRequest struct {
	Title        string            `json:"title" validate:"required,min=3,max=255"`
	Description  string            `json:"description" validate:"required"`
	Language     string            `json:"language" validate:"required,oneof=java python sql"`
	Difficulty   string            `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Marks        int               `json:"marks" validate:"min=0"`
	SampleInput  string            `json:"sample_input"`
	SampleOutput string            `json:"sample_output"`
	Constraints  string            `json:"constraints"`
	Hints        []string          `json:"hints" validate:"omitempty,dive,max=1000"`
	StarterCode  string            `json:"starter_code"`
	SolutionCode string            `json:"solution_code"`
	TestCases    []TestCaseRequest `json:"test_cases" validate:"required,min=1,dive"`
}

// QuestionListRequest filters the question bank.
type QuestionListRequest struct {
	Language   string
	Difficulty string
	Search     string
}

// QuestionResponse is the full admin view of a question.
type QuestionResponse struct {
	ID           uint               `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Language     string             `json:"language"`
	Difficulty   string             `json:"difficulty"`
	Marks        int                `json:"marks"`
	SampleInput  string             `json:"sample_input"`
	SampleOutput string             `json:"sample_output"`
	Constraints  string             `json:"constraints"`
	Hints        []string           `json:"hints"`
	StarterCode  string             `json:"starter_code"`
	SolutionCode string             `json:"solution_code,omitempty"`
	TestCases    []grading.TestCase `json:"test_cases"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewQuestionResponse builds the admin view of a question.
func NewQuestionResponse(question models.Question) QuestionResponse {
	return QuestionResponse{
		ID:           question.ID,
		Title:        question.Title,
		Description:  question.Description,
		Language:     question.Language,
		Difficulty:   question.Difficulty,
		Marks:        question.Marks,
		SampleInput:  question.SampleInput,
		SampleOutput: question.SampleOutput,
		Constraints:  question.Constraints,
		Hints:        nonNilStrings(question.Hints),
		StarterCode:  question.StarterCode,
		SolutionCode: question.SolutionCode,
		TestCases:    append([]grading.TestCase{}, question.TestCases...),
		CreatedAt:    question.CreatedAt,
		UpdatedAt:    question.UpdatedAt,
	}
}

// NewStudentQuestionResponse hides the solution and hidden test cases.
func NewStudentQuestionResponse(question models.Question) QuestionResponse {
	response := NewQuestionResponse(question)
	response.SolutionCode = ""
	response.TestCases = question.VisibleTestCases()
	return response
}

// QuestionImportRowError reports why a spreadsheet row was rejected.
type QuestionImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// QuestionImportResponse summarises a bulk import.
type QuestionImportResponse struct {
	Imported  int                      `json:"imported"`
	Questions []QuestionResponse       `json:"questions"`
	Errors    []QuestionImportRowError `json:"errors"`
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string{}, values...)
}
