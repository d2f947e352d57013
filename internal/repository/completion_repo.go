package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// DefaultPurgeBatchSize bounds how many submissions one delete statement removes.
const DefaultPurgeBatchSize = 100

// ReviewBuilder turns the latest submission per question into a review.
type ReviewBuilder func(latest map[uint]models.Submission) models.AssessmentReview

// FinalizeInput describes an assessment completion.
type FinalizeInput struct {
	UserID         uint
	AssessmentID   uint
	PurgeBatchSize int
	Build          ReviewBuilder
	CompletedAt    time.Time
}

// FinalizeResult reports the stored review and whether this call created it.
type FinalizeResult struct {
	Review     models.AssessmentReview
	Completion models.AssessmentCompletion
	Created    bool
	Purged     int64
}

// CompletionRepository stores assessment completions and reviews.
type CompletionRepository interface {
	Get(ctx context.Context, userID, assessmentID uint) (models.AssessmentCompletion, error)
	ListByUser(ctx context.Context, userID uint) ([]models.AssessmentCompletion, error)
	Finalize(ctx context.Context, input FinalizeInput) (FinalizeResult, error)
	GetReview(ctx context.Context, userID, assessmentID uint) (models.AssessmentReview, error)
	ListReviews(ctx context.Context, assessmentID uint) ([]models.AssessmentReview, error)
	SetReviewExportURL(ctx context.Context, reviewID uint, url string) error
}

type completionRepository struct {
	db *gorm.DB
}

// NewCompletionRepository constructs the completion repository.
func NewCompletionRepository(db *gorm.DB) CompletionRepository {
	return &completionRepository{db: db}
}

func (r *completionRepository) Get(ctx context.Context, userID, assessmentID uint) (models.AssessmentCompletion, error) {
	var completion models.AssessmentCompletion
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		First(&completion).Error; err != nil {
		return models.AssessmentCompletion{}, err
	}
	return completion, nil
}

func (r *completionRepository) ListByUser(ctx context.Context, userID uint) ([]models.AssessmentCompletion, error) {
	var completions []models.AssessmentCompletion
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("completed_at DESC").
		Find(&completions).Error; err != nil {
		return nil, err
	}
	return completions, nil
}

// Finalize writes the review and the completion row and purges the user's submissions
// for the assessment, all in one transaction. An assessment that is already complete
// returns the stored review untouched.
func (r *completionRepository) Finalize(ctx context.Context, input FinalizeInput) (FinalizeResult, error) {
	batchSize := input.PurgeBatchSize
	if batchSize <= 0 {
		batchSize = DefaultPurgeBatchSize
	}
	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}

	var result FinalizeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.AssessmentCompletion
		err := tx.Where("user_id = ? AND assessment_id = ?", input.UserID, input.AssessmentID).First(&existing).Error
		switch {
		case err == nil:
			result.Completion = existing
			return tx.Where("user_id = ? AND assessment_id = ?", input.UserID, input.AssessmentID).First(&result.Review).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		latest, err := latestByQuestion(tx, input.UserID, input.AssessmentID)
		if err != nil {
			return err
		}

		review := input.Build(latest)
		review.UserID = input.UserID
		review.AssessmentID = input.AssessmentID
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "assessment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"items", "total_score", "completed_count", "accepted_count", "total_questions", "avg_exec_ms", "updated_at"}),
		}).Create(&review).Error; err != nil {
			return err
		}

		completion := models.AssessmentCompletion{
			UserID:       input.UserID,
			AssessmentID: input.AssessmentID,
			Score:        review.TotalScore,
			AvgExecMs:    review.AvgExecMs,
			CompletedAt:  completedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "assessment_id"}},
			DoNothing: true,
		}).Create(&completion).Error; err != nil {
			return err
		}

		purged, err := purgeSubmissions(tx, input.UserID, input.AssessmentID, batchSize)
		if err != nil {
			return err
		}

		result = FinalizeResult{Review: review, Completion: completion, Created: true, Purged: purged}
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return result, nil
}

func purgeSubmissions(tx *gorm.DB, userID, assessmentID uint, batchSize int) (int64, error) {
	var purged int64
	for {
		var ids []uint
		if err := tx.Model(&models.Submission{}).
			Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return purged, err
		}
		if len(ids) == 0 {
			return purged, nil
		}

		result := tx.Where("id IN ?", ids).Delete(&models.Submission{})
		if result.Error != nil {
			return purged, result.Error
		}
		purged += result.RowsAffected
		if len(ids) < batchSize {
			return purged, nil
		}
	}
}

func (r *completionRepository) GetReview(ctx context.Context, userID, assessmentID uint) (models.AssessmentReview, error) {
	var review models.AssessmentReview
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		First(&review).Error; err != nil {
		return models.AssessmentReview{}, err
	}
	return review, nil
}

func (r *completionRepository) ListReviews(ctx context.Context, assessmentID uint) ([]models.AssessmentReview, error) {
	var reviews []models.AssessmentReview
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("total_score DESC").Order("avg_exec_ms ASC").
		Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *completionRepository) SetReviewExportURL(ctx context.Context, reviewID uint, url string) error {
	result := r.db.WithContext(ctx).Model(&models.AssessmentReview{}).
		Where("id = ?", reviewID).
		Update("export_url", url)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
