package session

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

// DefaultTTL is how long an editor snapshot survives.
const DefaultTTL = 24 * time.Hour

// Snapshot is the cached editor state of one question attempt.
type Snapshot struct {
	Code             string           `json:"code"`
	TimeRemaining    int              `json:"timeRemaining"`
	SessionStartTime time.Time        `json:"sessionStartTime"`
	QuestionID       uint             `json:"questionId"`
	LastSaved        time.Time        `json:"lastSaved"`
	TestResults      []grading.Result `json:"testResults,omitempty"`
	State            State            `json:"state,omitempty"`
}

// Expired reports whether the session started more than ttl ago.
func (s Snapshot) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return now.Sub(s.SessionStartTime) > ttl
}

// Restorable reports whether the snapshot can resume the given question.
func (s Snapshot) Restorable(questionID uint, now time.Time, ttl time.Duration) bool {
	return s.QuestionID == questionID && !s.Expired(now, ttl)
}

// HasResults reports whether a run has produced results that can be submitted.
func (s Snapshot) HasResults() bool {
	return len(s.TestResults) > 0
}
