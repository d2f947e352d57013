package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/pkg/ai"
)

type stubReviewer struct {
	input ai.FeedbackInput
}

func (r *stubReviewer) Review(ctx context.Context, input ai.FeedbackInput) (ai.FeedbackResult, error) {
	r.input = input
	return ai.FeedbackResult{
		Score:    6.5,
		Verdict:  "needs_work",
		Feedback: "Handle the empty input.",
		Details:  map[string]interface{}{"style": "ok"},
	}, nil
}

func (r *stubReviewer) Provider() string { return "stub" }

func newTestSubmissionService(db *gorm.DB, reviewer ai.Reviewer) SubmissionService {
	return NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewFeedbackRepository(db),
		reviewer,
		testLogger(),
	)
}

func seedGradedSubmission(t *testing.T, db *gorm.DB, f fixture) models.Submission {
	t.Helper()
	submission := models.Submission{
		UserID:       f.student,
		AssessmentID: f.assessment.ID,
		QuestionID:   f.questions[0].ID,
		Code:         "print('helo')",
		Language:     grading.LanguagePython,
		Status:       grading.StatusWrongAnswer,
		TestCasesResults: []grading.Result{
			{Input: "", Expected: "hello", Actual: "helo", Passed: false},
			{Input: "x", Expected: "hello", Actual: "helo", Passed: false, Hidden: true},
		},
		TotalTests:  2,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, db.Create(&submission).Error)
	return submission
}

func TestSubmissionServiceScopesStudents(t *testing.T) {
	db := setupServiceDB(t)
	f := seedFixture(t, db, 1)
	submission := seedGradedSubmission(t, db, f)
	svc := newTestSubmissionService(db, nil)
	ctx := context.Background()

	own, err := svc.List(ctx, Actor{ID: f.student, Role: "student"}, dto.SubmissionListRequest{UserID: f.outsider})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Empty(t, own[0].Results[1].Expected)
	require.Equal(t, "hello", own[0].Results[0].Expected)

	other, err := svc.List(ctx, Actor{ID: f.outsider, Role: "student"}, dto.SubmissionListRequest{})
	require.NoError(t, err)
	require.Empty(t, other)

	staff, err := svc.Get(ctx, Actor{ID: 1, Role: "admin"}, submission.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", staff.Results[1].Expected)

	_, err = svc.Get(ctx, Actor{ID: f.outsider, Role: "student"}, submission.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, Actor{ID: 1, Role: "admin"}, 999)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionServiceFeedback(t *testing.T) {
	db := setupServiceDB(t)
	f := seedFixture(t, db, 1)
	submission := seedGradedSubmission(t, db, f)
	ctx := context.Background()
	student := Actor{ID: f.student, Role: "student"}

	_, err := newTestSubmissionService(db, nil).RequestFeedback(ctx, student, submission.ID)
	require.ErrorIs(t, err, ErrReviewerUnavailable)

	reviewer := &stubReviewer{}
	svc := newTestSubmissionService(db, reviewer)

	feedback, err := svc.RequestFeedback(ctx, student, submission.ID)
	require.NoError(t, err)
	require.Equal(t, "needs_work", feedback.Verdict)
	require.Equal(t, "stub", feedback.Provider)
	require.Equal(t, "ok", feedback.Details["style"])

	require.Equal(t, "Echo 1", reviewer.input.QuestionTitle)
	require.Len(t, reviewer.input.FailedCases, 1)
	require.Contains(t, reviewer.input.FailedCases[0], `got "helo"`)
	require.Equal(t, "1 hidden test case(s) also failed.", reviewer.input.Notes)

	items, err := svc.ListFeedback(ctx, student, submission.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, feedback.ID, items[0].ID)

	_, err = svc.RequestFeedback(ctx, Actor{ID: f.outsider, Role: "student"}, submission.ID)
	require.ErrorIs(t, err, ErrForbidden)
}
