package service

import "errors"

var (
	// ErrCourseNotFound indicates the course cannot be located.
	ErrCourseNotFound = errors.New("course not found")
	// ErrQuestionNotFound indicates the question cannot be located.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAssessmentNotFound indicates the assessment does not exist or is inactive.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrQuestionNotInAssessment indicates the question is not part of the assessment.
	ErrQuestionNotInAssessment = errors.New("question is not part of this assessment")
	// ErrUnknownQuestions indicates an assessment references questions that do not exist.
	ErrUnknownQuestions = errors.New("assessment references unknown questions")
	// ErrNotEnrolled indicates the student is not enrolled in the assessment's course.
	ErrNotEnrolled = errors.New("not enrolled in this course")
	// ErrAssessmentCompleted indicates the assessment was already completed.
	ErrAssessmentCompleted = errors.New("assessment already completed")
	// ErrChancesExhausted indicates no attempts remain.
	ErrChancesExhausted = errors.New("no chances remaining for this assessment")
	// ErrSessionNotStarted indicates an action needs an entered question first.
	ErrSessionNotStarted = errors.New("question session not started")
	// ErrTimeExpired indicates the assessment countdown has run out.
	ErrTimeExpired = errors.New("assessment time has expired")
	// ErrUnsupportedLanguage indicates no execution backend serves the language.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrReviewNotFound indicates no review exists for the assessment.
	ErrReviewNotFound = errors.New("review not found")
	// ErrSubmissionNotFound indicates the submission cannot be located.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrForbidden indicates the caller may not access the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrReviewerUnavailable indicates AI feedback is not configured.
	ErrReviewerUnavailable = errors.New("feedback reviewer unavailable")
	// ErrExportUnavailable indicates no document store is configured.
	ErrExportUnavailable = errors.New("export storage unavailable")
	// ErrProctoringSessionNotFound indicates the proctoring session cannot be located.
	ErrProctoringSessionNotFound = errors.New("proctoring session not found")
	// ErrProctoringSessionEnded indicates the proctoring session is closed.
	ErrProctoringSessionEnded = errors.New("proctoring session already ended")
	// ErrInvalidExpectedOutput indicates a SQL test case is not a JSON array of row objects.
	ErrInvalidExpectedOutput = errors.New("sql expected output must be a JSON array of objects")
	// ErrInvalidImportFile indicates the uploaded file is not a spreadsheet.
	ErrInvalidImportFile = errors.New("import file must be an xlsx workbook")
)

// Actor identifies the authenticated caller.
type Actor struct {
	ID   uint
	Role string
}

// IsStaff reports whether the actor may manage the catalog.
func (a Actor) IsStaff() bool {
	return a.Role == "admin" || a.Role == "teacher"
}
