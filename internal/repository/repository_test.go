package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func TestCourseEnrollment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCourseRepository(db)
	ctx := context.Background()

	algo := models.Course{Code: "CS101", Title: "Algorithms", IsActive: true}
	data := models.Course{Code: "DB201", Title: "Databases", IsActive: true}
	require.NoError(t, repo.Create(ctx, &algo))
	require.NoError(t, repo.Create(ctx, &data))

	require.NoError(t, repo.Enroll(ctx, algo.ID, 7))
	require.NoError(t, repo.Enroll(ctx, algo.ID, 7), "enrolling twice is a no-op")

	enrolled, err := repo.IsEnrolled(ctx, algo.ID, 7)
	require.NoError(t, err)
	require.True(t, enrolled)

	ids, err := repo.EnrolledCourseIDs(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []uint{algo.ID}, ids)

	courses, err := repo.List(ctx, CourseFilter{UserID: uintPtr(7)})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "Algorithms", courses[0].Title)

	require.NoError(t, repo.Unenroll(ctx, algo.ID, 7))
	enrolled, err = repo.IsEnrolled(ctx, algo.ID, 7)
	require.NoError(t, err)
	require.False(t, enrolled)

	require.NoError(t, repo.Delete(ctx, data.ID))
	require.ErrorIs(t, repo.Delete(ctx, data.ID), gorm.ErrRecordNotFound)
}

func TestQuestionRepositoryKeepsTestCasesAndOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	first := models.Question{Title: "Sum", Language: grading.LanguagePython, Hints: []string{"use input()"}, TestCases: []grading.TestCase{
		{Input: "1 2", ExpectedOutput: "3", Marks: 1},
		{Input: "5 5", ExpectedOutput: "10", IsHidden: true, Marks: 2},
	}}
	second := models.Question{Title: "Select", Language: grading.LanguageSQL}
	require.NoError(t, repo.Create(ctx, &first))
	require.NoError(t, repo.Create(ctx, &second))

	loaded, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, loaded.TestCases, 2)
	require.True(t, loaded.TestCases[1].IsHidden)
	require.Equal(t, []string{"use input()"}, []string(loaded.Hints))
	require.Len(t, loaded.VisibleTestCases(), 1)

	ordered, err := repo.GetByIDs(ctx, []uint{second.ID, 999, first.ID})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	require.Equal(t, second.ID, ordered[0].ID)
	require.Equal(t, first.ID, ordered[1].ID)

	sqlOnly, err := repo.List(ctx, QuestionFilter{Language: "SQL"})
	require.NoError(t, err)
	require.Len(t, sqlOnly, 1)
}

func TestAssessmentRepositoryFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()

	active := models.Assessment{Title: "Midterm", CourseID: 1, TimeLimit: 30, Chances: 1, QuestionIDs: []uint{3, 1, 2}, IsActive: true}
	inactive := models.Assessment{Title: "Draft", CourseID: 1, TimeLimit: 30, Chances: 1}
	other := models.Assessment{Title: "Other", CourseID: 2, TimeLimit: 30, Chances: 1, IsActive: true}
	for _, assessment := range []*models.Assessment{&active, &inactive, &other} {
		require.NoError(t, repo.Create(ctx, assessment))
	}
	require.NoError(t, db.Model(&inactive).Update("is_active", false).Error)

	list, err := repo.List(ctx, AssessmentFilter{CourseIDs: []uint{1}, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, []uint{3, 1, 2}, []uint(list[0].QuestionIDs))

	none, err := repo.List(ctx, AssessmentFilter{CourseIDs: []uint{}})
	require.NoError(t, err)
	require.Empty(t, none)

	next, ok := list[0].NextQuestionID(1)
	require.True(t, ok)
	require.Equal(t, uint(2), next)
	_, ok = list[0].NextQuestionID(2)
	require.False(t, ok)
}

func TestSubmissionRepositoryOrderingAndCounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	submissions := []models.Submission{
		{UserID: 1, AssessmentID: 10, QuestionID: 1, Language: "python", Status: grading.StatusWrongAnswer, SubmittedAt: now.Add(-3 * time.Minute)},
		{UserID: 1, AssessmentID: 10, QuestionID: 1, Language: "python", Status: grading.StatusAccepted, SubmittedAt: now.Add(-1 * time.Minute)},
		{UserID: 1, AssessmentID: 10, QuestionID: 2, Language: "python", Status: grading.StatusAccepted, SubmittedAt: now.Add(-2 * time.Minute)},
		{UserID: 1, AssessmentID: 11, QuestionID: 5, Language: "sql", Status: grading.StatusAccepted, SubmittedAt: now},
		{UserID: 2, AssessmentID: 10, QuestionID: 1, Language: "java", Status: grading.StatusAccepted, SubmittedAt: now},
	}
	for i := range submissions {
		require.NoError(t, repo.Create(ctx, &submissions[i]))
	}

	list, err := repo.List(ctx, SubmissionFilter{UserID: uintPtr(1), AssessmentID: uintPtr(10)})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, submissions[1].ID, list[0].ID)
	require.Equal(t, submissions[0].ID, list[2].ID)

	count, err := repo.CountForAssessment(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	counts, err := repo.CountByAssessment(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[uint]int64{10: 3, 11: 1}, counts)

	latest, err := repo.LatestByQuestion(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, grading.StatusAccepted, latest[1].Status)
}

func TestSortSubmissionsNewestFirst(t *testing.T) {
	now := time.Now()
	submissions := []models.Submission{
		{ID: 1, SubmittedAt: now.Add(-time.Hour)},
		{ID: 2, SubmittedAt: now},
		{ID: 3, SubmittedAt: now},
	}
	SortSubmissionsNewestFirst(submissions)
	require.Equal(t, uint(3), submissions[0].ID)
	require.Equal(t, uint(2), submissions[1].ID)
	require.Equal(t, uint(1), submissions[2].ID)
}

func TestFinalizeIsTransactionalAndIdempotent(t *testing.T) {
	db := setupTestDB(t)
	submissionRepo := NewSubmissionRepository(db)
	repo := NewCompletionRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status := grading.StatusWrongAnswer
		if i%2 == 0 {
			status = grading.StatusAccepted
		}
		require.NoError(t, submissionRepo.Create(ctx, &models.Submission{
			UserID: 1, AssessmentID: 10, QuestionID: uint(i%3 + 1), Language: "python", Status: status,
			SubmittedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, submissionRepo.Create(ctx, &models.Submission{UserID: 2, AssessmentID: 10, QuestionID: 1, Language: "python", Status: grading.StatusAccepted}))

	builds := 0
	build := func(latest map[uint]models.Submission) models.AssessmentReview {
		builds++
		outcomes := make(map[uint]grading.QuestionOutcome, len(latest))
		for id, submission := range latest {
			outcomes[id] = submission.Outcome()
		}
		return models.NewAssessmentReview(0, 0, grading.BuildReview([]uint{1, 2, 3}, outcomes))
	}

	result, err := repo.Finalize(ctx, FinalizeInput{UserID: 1, AssessmentID: 10, PurgeBatchSize: 2, Build: build})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.Equal(t, int64(5), result.Purged)
	require.Equal(t, 3, result.Review.CompletedCount)
	require.Equal(t, result.Review.TotalScore, result.Completion.Score)

	remaining, err := submissionRepo.CountForAssessment(ctx, 1, 10)
	require.NoError(t, err)
	require.Zero(t, remaining)
	other, err := submissionRepo.CountForAssessment(ctx, 2, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), other)

	again, err := repo.Finalize(ctx, FinalizeInput{UserID: 1, AssessmentID: 10, Build: build})
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, 1, builds)
	require.Equal(t, result.Review.ID, again.Review.ID)
	require.Equal(t, result.Review.TotalScore, again.Review.TotalScore)

	completions, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, completions, 1)

	require.NoError(t, repo.SetReviewExportURL(ctx, result.Review.ID, "https://cdn.example.com/review.xlsx"))
	stored, err := repo.GetReview(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/review.xlsx", stored.ExportURL)
	require.Len(t, stored.Items, 3)
}

func TestProctoringSummaryCounters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProctoringRepository(db)
	ctx := context.Background()

	session := models.ProctoringSession{SessionID: "c0ffee00-0000-4000-8000-000000000001", UserID: 1, AssessmentID: 2, StartedAt: time.Now()}
	require.NoError(t, repo.CreateSession(ctx, &session))

	for _, violation := range []models.ProctoringViolation{
		{Type: models.ViolationTabSwitch, Severity: 2},
		{Type: models.ViolationTabSwitch, Severity: 4},
		{Type: models.ViolationRightClick, Severity: 1},
	} {
		violation.SessionID = session.SessionID
		violation.UserID = 1
		violation.AssessmentID = 2
		violation.Timestamp = time.Now()
		_, err := repo.RecordViolation(ctx, &violation)
		require.NoError(t, err)
	}

	summary, err := repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, 3, summary.ViolationCount)
	require.Equal(t, 4, summary.HighestSeverity)
	require.Equal(t, map[string]int{"tab_switch": 2, "right_click": 1}, summary.Counts())

	violations, err := repo.ListViolations(ctx, ViolationFilter{AssessmentID: uintPtr(2)})
	require.NoError(t, err)
	require.Len(t, violations, 3)

	ended, err := repo.EndSession(ctx, session.SessionID, time.Now())
	require.NoError(t, err)
	require.False(t, ended.Active())

	_, err = repo.RecordViolation(ctx, &models.ProctoringViolation{SessionID: "missing", Type: models.ViolationAltTab})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestActivityLogFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "admin", Action: "assessment.create", EntityType: "assessment", EntityID: uintPtr(5)}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "admin", Action: "question.create", EntityType: "question", EntityID: uintPtr(9)}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{EntityType: "assessment", EntityID: uintPtr(5)})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "assessment.create", entries[0].Action)
}
