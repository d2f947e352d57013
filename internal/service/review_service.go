package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// Completion triggers.
const (
	TriggerSubmitted = "submitted"
	TriggerExpired   = "expired"
)

const reviewSheet = "Review"

// DocumentUploader stores exported documents and returns their public URL.
type DocumentUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// ReviewService finalizes assessments and serves their reviews.
type ReviewService interface {
	Complete(ctx context.Context, userID, assessmentID uint, trigger string) (dto.ReviewResponse, error)
	Get(ctx context.Context, actor Actor, userID, assessmentID uint) (dto.ReviewResponse, error)
	List(ctx context.Context, assessmentID uint) ([]dto.ReviewResponse, error)
	Completions(ctx context.Context, userID uint) (dto.CompletionMap, error)
	Workbook(ctx context.Context, actor Actor, userID, assessmentID uint) ([]byte, string, error)
	Export(ctx context.Context, actor Actor, userID, assessmentID uint) (dto.ExportResponse, error)
}

type reviewService struct {
	assessments    repository.AssessmentRepository
	completions    repository.CompletionRepository
	publisher      events.Publisher
	uploader       DocumentUploader
	purgeBatchSize int
	logger         zerolog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// NewReviewService constructs the review service. A nil uploader disables Export.
func NewReviewService(assessments repository.AssessmentRepository, completions repository.CompletionRepository, publisher events.Publisher, uploader DocumentUploader, purgeBatchSize int, logger zerolog.Logger) ReviewService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &reviewService{
		assessments:    assessments,
		completions:    completions,
		publisher:      publisher,
		uploader:       uploader,
		purgeBatchSize: purgeBatchSize,
		logger:         logger.With().Str("component", "review_service").Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service"),
		now:            time.Now,
	}
}

// Complete builds the review from the latest submission of every question, records
// the completion and purges the submissions. Completing twice returns the stored review.
func (s *reviewService) Complete(ctx context.Context, userID, assessmentID uint, trigger string) (dto.ReviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "review.finalize", trace.WithAttributes(
		attribute.Int64("assessment.id", int64(assessmentID)),
		attribute.String("review.trigger", trigger),
	))
	defer span.End()

	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReviewResponse{}, ErrAssessmentNotFound
		}
		return dto.ReviewResponse{}, err
	}

	result, err := s.completions.Finalize(ctx, repository.FinalizeInput{
		UserID:         userID,
		AssessmentID:   assessmentID,
		PurgeBatchSize: s.purgeBatchSize,
		CompletedAt:    s.now().UTC(),
		Build: func(latest map[uint]models.Submission) models.AssessmentReview {
			outcomes := make(map[uint]grading.QuestionOutcome, len(latest))
			for questionID, submission := range latest {
				outcomes[questionID] = submission.Outcome()
			}
			return models.NewAssessmentReview(userID, assessmentID, grading.BuildReview(assessment.QuestionIDs, outcomes))
		},
	})
	if err != nil {
		span.RecordError(err)
		return dto.ReviewResponse{}, fmt.Errorf("finalize assessment: %w", err)
	}
	span.SetAttributes(attribute.Bool("review.created", result.Created), attribute.Int("review.total_score", result.Review.TotalScore))

	if result.Created {
		observability.Completions().WithLabelValues(trigger).Inc()
		if err := s.publisher.Publish(ctx, events.TopicAssessmentCompleted, events.AssessmentCompleted{
			UserID:       userID,
			AssessmentID: assessmentID,
			TotalScore:   result.Review.TotalScore,
			AvgExecMs:    result.Review.AvgExecMs,
			Trigger:      trigger,
			CompletedAt:  result.Completion.CompletedAt,
		}); err != nil {
			s.logger.Warn().Err(err).Uint("assessment_id", assessmentID).Msg("failed to publish completion")
		}
		s.logger.Info().
			Uint("user_id", userID).
			Uint("assessment_id", assessmentID).
			Int("total_score", result.Review.TotalScore).
			Int64("purged", result.Purged).
			Str("trigger", trigger).
			Msg("assessment completed")
	}

	return dto.NewReviewResponse(result.Review), nil
}

func (s *reviewService) Get(ctx context.Context, actor Actor, userID, assessmentID uint) (dto.ReviewResponse, error) {
	review, err := s.load(ctx, actor, userID, assessmentID)
	if err != nil {
		return dto.ReviewResponse{}, err
	}
	return dto.NewReviewResponse(review), nil
}

func (s *reviewService) List(ctx context.Context, assessmentID uint) ([]dto.ReviewResponse, error) {
	reviews, err := s.completions.ListReviews(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		responses = append(responses, dto.NewReviewResponse(review))
	}
	return responses, nil
}

func (s *reviewService) Completions(ctx context.Context, userID uint) (dto.CompletionMap, error) {
	completions, err := s.completions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make(dto.CompletionMap, len(completions))
	for _, completion := range completions {
		result[strconv.FormatUint(uint64(completion.AssessmentID), 10)] = dto.CompletionEntry{
			Score:       completion.Score,
			AvgExecMs:   completion.AvgExecMs,
			CompletedAt: completion.CompletedAt,
		}
	}
	return result, nil
}

// Workbook renders the review as an xlsx document and returns it with a file name.
func (s *reviewService) Workbook(ctx context.Context, actor Actor, userID, assessmentID uint) ([]byte, string, error) {
	review, err := s.load(ctx, actor, userID, assessmentID)
	if err != nil {
		return nil, "", err
	}
	data, err := renderReviewWorkbook(review)
	if err != nil {
		return nil, "", err
	}
	return data, reviewFileName(review), nil
}

func (s *reviewService) Export(ctx context.Context, actor Actor, userID, assessmentID uint) (dto.ExportResponse, error) {
	if s.uploader == nil {
		return dto.ExportResponse{}, ErrExportUnavailable
	}

	review, err := s.load(ctx, actor, userID, assessmentID)
	if err != nil {
		return dto.ExportResponse{}, err
	}
	data, err := renderReviewWorkbook(review)
	if err != nil {
		return dto.ExportResponse{}, err
	}

	url, err := s.uploader.Upload(ctx, reviewFileName(review), bytes.NewReader(data))
	if err != nil {
		return dto.ExportResponse{}, err
	}
	if err := s.completions.SetReviewExportURL(ctx, review.ID, url); err != nil {
		return dto.ExportResponse{}, err
	}

	s.logger.Info().Uint("review_id", review.ID).Msg("review exported")
	return dto.ExportResponse{ReviewID: review.ID, ExportURL: url}, nil
}

func (s *reviewService) load(ctx context.Context, actor Actor, userID, assessmentID uint) (models.AssessmentReview, error) {
	if !actor.IsStaff() && actor.ID != userID {
		return models.AssessmentReview{}, ErrForbidden
	}
	review, err := s.completions.GetReview(ctx, userID, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentReview{}, ErrReviewNotFound
		}
		return models.AssessmentReview{}, err
	}
	return review, nil
}

func renderReviewWorkbook(review models.AssessmentReview) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reviewSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create review sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Question", "Status", "Passed", "Total", "Points", "Execution (ms)", "Code"},
	}
	for _, item := range review.Items {
		rows = append(rows, []interface{}{
			item.QuestionID, item.Status, item.PassedTests, item.TotalTests, item.EarnedPoints, item.ExecutionTimeMs, item.Code,
		})
	}
	rows = append(rows,
		[]interface{}{},
		[]interface{}{"Total score", review.TotalScore},
		[]interface{}{"Completed", fmt.Sprintf("%d/%d", review.CompletedCount, review.TotalQuestions)},
		[]interface{}{"Accepted", review.AcceptedCount},
		[]interface{}{"Average execution (ms)", review.AvgExecMs},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(reviewSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write review row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write review workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func reviewFileName(review models.AssessmentReview) string {
	return fmt.Sprintf("review-%d-%d.xlsx", review.AssessmentID, review.UserID)
}
