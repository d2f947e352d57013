package models

// All returns every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Course{},
		&Enrollment{},
		&Question{},
		&Assessment{},
		&Submission{},
		&AssessmentCompletion{},
		&AssessmentReview{},
		&ProctoringViolation{},
		&ProctoringSession{},
		&SubmissionFeedback{},
		&ActivityLog{},
	}
}
