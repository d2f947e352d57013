package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// FeedbackRepository stores AI feedback on submissions.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *models.SubmissionFeedback) error
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionFeedback, error)
}

type feedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository constructs the feedback repository.
func NewFeedbackRepository(db *gorm.DB) FeedbackRepository {
	return &feedbackRepository{db: db}
}

func (r *feedbackRepository) Create(ctx context.Context, feedback *models.SubmissionFeedback) error {
	return r.db.WithContext(ctx).Create(feedback).Error
}

func (r *feedbackRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionFeedback, error) {
	var feedback []models.SubmissionFeedback
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC").
		Find(&feedback).Error; err != nil {
		return nil, err
	}
	return feedback, nil
}
