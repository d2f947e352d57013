package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

// Question is a coding problem graded against its test cases.
type Question struct {
	ID           uint                                `gorm:"primaryKey" json:"id"`
	Title        string                              `gorm:"size:255;not null" json:"title"`
	Description  string                              `gorm:"type:text" json:"description"`
	Language     string                              `gorm:"size:32;not null;index" json:"language"`
	Difficulty   string                              `gorm:"size:32" json:"difficulty"`
	Marks        int                                 `gorm:"not null;default:0" json:"marks"`
	SampleInput  string                              `gorm:"type:text" json:"sample_input"`
	SampleOutput string                              `gorm:"type:text" json:"sample_output"`
	Constraints  string                              `gorm:"type:text" json:"constraints"`
	Hints        datatypes.JSONSlice[string]         `json:"hints"`
	StarterCode  string                              `gorm:"type:text" json:"starter_code"`
	SolutionCode string                              `gorm:"type:text" json:"solution_code"`
	TestCases    datatypes.JSONSlice[grading.TestCase] `json:"test_cases"`
	CreatedAt    time.Time                           `json:"created_at"`
	UpdatedAt    time.Time                           `json:"updated_at"`
}

// VisibleTestCases returns the test cases a student may see.
func (q Question) VisibleTestCases() []grading.TestCase {
	visible := make([]grading.TestCase, 0, len(q.TestCases))
	for _, testCase := range q.TestCases {
		if !testCase.IsHidden {
			visible = append(visible, testCase)
		}
	}
	return visible
}
