package session

import (
	"fmt"
	"strconv"
	"strings"
)

const keyPrefix = "codeEditor"

// Key identifies the editor session of one user on one question of an assessment.
type Key struct {
	AssessmentID uint
	QuestionID   uint
	UserID       uint
}

// String renders the cache key, codeEditor_{assessment}_{question}_{user}.
func (k Key) String() string {
	return fmt.Sprintf("%s_%d_%d_%d", keyPrefix, k.AssessmentID, k.QuestionID, k.UserID)
}

// assessmentPattern matches every question key of a user within an assessment.
func assessmentPattern(assessmentID, userID uint) string {
	return fmt.Sprintf("%s_%d_*_%d", keyPrefix, assessmentID, userID)
}

// ParseKey is the inverse of Key.String.
func ParseKey(raw string) (Key, bool) {
	parts := strings.Split(raw, "_")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return Key{}, false
	}

	ids := make([]uint, 3)
	for i, part := range parts[1:] {
		value, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Key{}, false
		}
		ids[i] = uint(value)
	}
	return Key{AssessmentID: ids[0], QuestionID: ids[1], UserID: ids[2]}, true
}
