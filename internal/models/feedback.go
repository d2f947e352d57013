package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionFeedback is AI-generated review commentary on a submission.
type SubmissionFeedback struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	SubmissionID uint              `gorm:"not null;index" json:"submission_id"`
	Score        float64           `gorm:"not null" json:"score"`
	Verdict      string            `gorm:"size:64" json:"verdict"`
	Feedback     string            `gorm:"type:text" json:"feedback"`
	Details      datatypes.JSONMap `json:"details"`
	Provider     string            `gorm:"size:32" json:"provider"`
	RequestedBy  uint              `gorm:"not null" json:"requested_by"`
	CreatedAt    time.Time         `json:"created_at"`
}
