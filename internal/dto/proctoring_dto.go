package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ProctoringStartRequest opens a proctoring session.
type ProctoringStartRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required,gt=0"`
}

// ViolationRequest reports a client-side proctoring signal.
type ViolationRequest struct {
	SessionID string                 `json:"session_id" validate:"required,uuid4"`
	Type      string                 `json:"type" validate:"required,oneof=tab_switch window_blur right_click keyboard_shortcut alt_tab fullscreen_exit mouse_leave"`
	Severity  int                    `json:"severity" validate:"required,min=1,max=5"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp *time.Time             `json:"timestamp"`
}

// ViolationListRequest filters violations.
type ViolationListRequest struct {
	AssessmentID uint
	UserID       uint
	SessionID    string
}

// ProctoringSessionResponse summarises a session.
type ProctoringSessionResponse struct {
	SessionID       string         `json:"session_id"`
	UserID          uint           `json:"user_id"`
	AssessmentID    uint           `json:"assessment_id"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	ViolationCount  int            `json:"violation_count"`
	CountsByType    map[string]int `json:"counts_by_type"`
	HighestSeverity int            `json:"highest_severity"`
}

// NewProctoringSessionResponse converts a session model.
func NewProctoringSessionResponse(session models.ProctoringSession) ProctoringSessionResponse {
	return ProctoringSessionResponse{
		SessionID:       session.SessionID,
		UserID:          session.UserID,
		AssessmentID:    session.AssessmentID,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		ViolationCount:  session.ViolationCount,
		CountsByType:    session.Counts(),
		HighestSeverity: session.HighestSeverity,
	}
}

// ViolationResponse represents a recorded violation.
type ViolationResponse struct {
	ID           uint                   `json:"id"`
	UserID       uint                   `json:"user_id"`
	AssessmentID uint                   `json:"assessment_id"`
	SessionID    string                 `json:"session_id"`
	Type         string                 `json:"type"`
	Severity     int                    `json:"severity"`
	Metadata     map[string]interface{} `json:"metadata"`
	Timestamp    time.Time              `json:"timestamp"`
}

// NewViolationResponse converts a violation model.
func NewViolationResponse(violation models.ProctoringViolation) ViolationResponse {
	return ViolationResponse{
		ID:           violation.ID,
		UserID:       violation.UserID,
		AssessmentID: violation.AssessmentID,
		SessionID:    violation.SessionID,
		Type:         string(violation.Type),
		Severity:     violation.Severity,
		Metadata:     metadataFromJSON(violation.Metadata),
		Timestamp:    violation.Timestamp,
	}
}
