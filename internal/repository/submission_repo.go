package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SubmissionFilter narrows submission queries.
type SubmissionFilter struct {
	UserID       *uint
	AssessmentID *uint
	QuestionID   *uint
	Status       string
}

// SubmissionRepository persists graded submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	CountForAssessment(ctx context.Context, userID, assessmentID uint) (int64, error)
	CountByAssessment(ctx context.Context, userID uint) (map[uint]int64, error)
	LatestByQuestion(ctx context.Context, userID, assessmentID uint) (map[uint]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) filtered(ctx context.Context, filter SubmissionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Submission{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filter.AssessmentID)
	}
	if filter.QuestionID != nil {
		query = query.Where("question_id = ?", *filter.QuestionID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

// List returns submissions newest first. If the ordered query fails the rows are
// fetched unordered and sorted in memory.
func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	var submissions []models.Submission
	err := r.filtered(ctx, filter).Order("submitted_at DESC").Order("id DESC").Find(&submissions).Error
	if err == nil {
		return submissions, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	submissions = nil
	if fallbackErr := r.filtered(ctx, filter).Find(&submissions).Error; fallbackErr != nil {
		return nil, err
	}
	SortSubmissionsNewestFirst(submissions)
	return submissions, nil
}

// SortSubmissionsNewestFirst orders submissions by submission time, newest first.
func SortSubmissionsNewestFirst(submissions []models.Submission) {
	sort.SliceStable(submissions, func(i, j int) bool {
		if submissions[i].SubmittedAt.Equal(submissions[j].SubmittedAt) {
			return submissions[i].ID > submissions[j].ID
		}
		return submissions[i].SubmittedAt.After(submissions[j].SubmittedAt)
	})
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) CountForAssessment(ctx context.Context, userID, assessmentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Count(&count).Error
	return count, err
}

func (r *submissionRepository) CountByAssessment(ctx context.Context, userID uint) (map[uint]int64, error) {
	var rows []struct {
		AssessmentID uint
		Total        int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Select("assessment_id, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("assessment_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.AssessmentID] = row.Total
	}
	return counts, nil
}

func (r *submissionRepository) LatestByQuestion(ctx context.Context, userID, assessmentID uint) (map[uint]models.Submission, error) {
	return latestByQuestion(r.db.WithContext(ctx), userID, assessmentID)
}

func latestByQuestion(db *gorm.DB, userID, assessmentID uint) (map[uint]models.Submission, error) {
	var submissions []models.Submission
	if err := db.Model(&models.Submission{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Order("submitted_at DESC").Order("id DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	latest := make(map[uint]models.Submission)
	for _, submission := range submissions {
		if _, seen := latest[submission.QuestionID]; !seen {
			latest[submission.QuestionID] = submission
		}
	}
	return latest, nil
}
