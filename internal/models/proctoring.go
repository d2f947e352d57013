package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ViolationType enumerates client-side proctoring signals.
type ViolationType string

const (
	ViolationTabSwitch        ViolationType = "tab_switch"
	ViolationWindowBlur       ViolationType = "window_blur"
	ViolationRightClick       ViolationType = "right_click"
	ViolationKeyboardShortcut ViolationType = "keyboard_shortcut"
	ViolationAltTab           ViolationType = "alt_tab"
	ViolationFullscreenExit   ViolationType = "fullscreen_exit"
	ViolationMouseLeave       ViolationType = "mouse_leave"
)

// ViolationTypes lists every accepted violation type.
var ViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationRightClick,
	ViolationKeyboardShortcut,
	ViolationAltTab,
	ViolationFullscreenExit,
	ViolationMouseLeave,
}

// ProctoringViolation is an append-only record of one suspicious client event.
type ProctoringViolation struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index:idx_violation_user_assessment" json:"user_id"`
	AssessmentID uint              `gorm:"not null;index:idx_violation_user_assessment" json:"assessment_id"`
	SessionID    string            `gorm:"size:36;not null;index" json:"session_id"`
	Type         ViolationType     `gorm:"size:32;not null" json:"type"`
	Severity     int               `gorm:"not null;default:1" json:"severity"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	Timestamp    time.Time         `gorm:"not null" json:"timestamp"`
}

// ProctoringSession summarises the violations of one proctored attempt.
type ProctoringSession struct {
	SessionID       string            `gorm:"primaryKey;size:36" json:"session_id"`
	UserID          uint              `gorm:"not null;index" json:"user_id"`
	AssessmentID    uint              `gorm:"not null;index" json:"assessment_id"`
	StartedAt       time.Time         `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at"`
	ViolationCount  int               `gorm:"not null;default:0" json:"violation_count"`
	CountsByType    datatypes.JSONMap `json:"counts_by_type"`
	HighestSeverity int               `gorm:"not null;default:0" json:"highest_severity"`
}

// Active reports whether the session has not been ended.
func (s ProctoringSession) Active() bool {
	return s.EndedAt == nil
}

// Counts returns the per-type violation counters as integers. JSONMap decodes
// stored numbers as json.Number, freshly built maps hold ints.
func (s ProctoringSession) Counts() map[string]int {
	counts := make(map[string]int, len(s.CountsByType))
	for key, value := range s.CountsByType {
		counts[key] = counterValue(value)
	}
	return counts
}

func counterValue(value any) int {
	switch typed := value.(type) {
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			f, _ := typed.Float64()
			return int(f)
		}
		return int(n)
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	default:
		return 0
	}
}
