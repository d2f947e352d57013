package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assessment is a timed, ordered set of coding questions.
type Assessment struct {
	ID          uint                     `gorm:"primaryKey" json:"id"`
	Title       string                   `gorm:"size:255;not null" json:"title"`
	Description string                   `gorm:"type:text" json:"description"`
	CourseID    uint                     `gorm:"not null;index" json:"course_id"`
	Difficulty  string                   `gorm:"size:32" json:"difficulty"`
	TimeLimit   int                      `gorm:"not null" json:"time_limit"`
	MaxMarks    int                      `gorm:"not null;default:100" json:"max_marks"`
	Chances     int                      `gorm:"not null;default:1" json:"chances"`
	QuestionIDs datatypes.JSONSlice[uint] `json:"question_ids"`
	IsActive    bool                     `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// TimeLimitSeconds converts the minute limit into countdown seconds.
func (a Assessment) TimeLimitSeconds() int {
	return a.TimeLimit * 60
}

// QuestionIndex returns the position of questionID in the assessment, or -1.
func (a Assessment) QuestionIndex(questionID uint) int {
	for i, id := range a.QuestionIDs {
		if id == questionID {
			return i
		}
	}
	return -1
}

// NextQuestionID returns the question after questionID, if any.
func (a Assessment) NextQuestionID(questionID uint) (uint, bool) {
	index := a.QuestionIndex(questionID)
	if index < 0 || index+1 >= len(a.QuestionIDs) {
		return 0, false
	}
	return a.QuestionIDs[index+1], true
}
