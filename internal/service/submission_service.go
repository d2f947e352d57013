package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/pkg/ai"
)

const maxFailedCasesInPrompt = 5

// SubmissionService exposes persisted submissions and their AI feedback.
type SubmissionService interface {
	List(ctx context.Context, actor Actor, req dto.SubmissionListRequest) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	RequestFeedback(ctx context.Context, actor Actor, id uint) (dto.FeedbackResponse, error)
	ListFeedback(ctx context.Context, actor Actor, id uint) ([]dto.FeedbackResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	feedback    repository.FeedbackRepository
	reviewer    ai.Reviewer
	logger      zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService. A nil reviewer disables feedback.
func NewSubmissionService(submissions repository.SubmissionRepository, questions repository.QuestionRepository, feedback repository.FeedbackRepository, reviewer ai.Reviewer, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		questions:   questions,
		feedback:    feedback,
		reviewer:    reviewer,
		logger:      logger.With().Str("component", "submission_service").Logger(),
	}
}

// List returns submissions newest first. Students only see their own.
func (s *submissionService) List(ctx context.Context, actor Actor, req dto.SubmissionListRequest) ([]dto.SubmissionResponse, error) {
	filter := repository.SubmissionFilter{Status: strings.TrimSpace(req.Status)}
	if !actor.IsStaff() {
		req.UserID = actor.ID
	}
	if req.UserID > 0 {
		filter.UserID = &req.UserID
	}
	if req.AssessmentID > 0 {
		filter.AssessmentID = &req.AssessmentID
	}
	if req.QuestionID > 0 {
		filter.QuestionID = &req.QuestionID
	}

	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, dto.NewSubmissionResponse(submission, true, actor.IsStaff()))
	}
	return responses, nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.find(ctx, actor, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, true, actor.IsStaff()), nil
}

func (s *submissionService) RequestFeedback(ctx context.Context, actor Actor, id uint) (dto.FeedbackResponse, error) {
	if s.reviewer == nil {
		return dto.FeedbackResponse{}, ErrReviewerUnavailable
	}

	submission, err := s.find(ctx, actor, id)
	if err != nil {
		return dto.FeedbackResponse{}, err
	}
	question, err := s.questions.GetByID(ctx, submission.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackResponse{}, ErrQuestionNotFound
		}
		return dto.FeedbackResponse{}, err
	}

	result, err := s.reviewer.Review(ctx, feedbackInput(question, submission))
	if err != nil {
		s.logger.Error().Err(err).Uint("submission_id", id).Msg("feedback request failed")
		return dto.FeedbackResponse{}, fmt.Errorf("request feedback: %w", err)
	}

	details := datatypes.JSONMap{}
	for key, value := range result.Details {
		details[key] = value
	}
	feedback := models.SubmissionFeedback{
		SubmissionID: submission.ID,
		Score:        result.Score,
		Verdict:      result.Verdict,
		Feedback:     result.Feedback,
		Details:      details,
		Provider:     s.reviewer.Provider(),
		RequestedBy:  actor.ID,
	}
	if err := s.feedback.Create(ctx, &feedback); err != nil {
		return dto.FeedbackResponse{}, err
	}

	s.logger.Info().Uint("submission_id", id).Str("provider", feedback.Provider).Msg("feedback stored")
	return dto.NewFeedbackResponse(feedback), nil
}

func (s *submissionService) ListFeedback(ctx context.Context, actor Actor, id uint) ([]dto.FeedbackResponse, error) {
	if _, err := s.find(ctx, actor, id); err != nil {
		return nil, err
	}
	items, err := s.feedback.ListBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.FeedbackResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, dto.NewFeedbackResponse(item))
	}
	return responses, nil
}

func (s *submissionService) find(ctx context.Context, actor Actor, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	if !actor.IsStaff() && submission.UserID != actor.ID {
		return models.Submission{}, ErrForbidden
	}
	return submission, nil
}

func feedbackInput(question models.Question, submission models.Submission) ai.FeedbackInput {
	input := ai.FeedbackInput{
		QuestionTitle: question.Title,
		Description:   question.Description,
		Constraints:   question.Constraints,
		Language:      submission.Language,
		Code:          submission.Code,
		PassedTests:   submission.PassedTests,
		TotalTests:    submission.TotalTests,
	}

	hiddenFailures := 0
	for _, result := range submission.TestCasesResults {
		if result.Passed {
			continue
		}
		if result.Hidden {
			hiddenFailures++
			continue
		}
		if len(input.FailedCases) >= maxFailedCasesInPrompt {
			continue
		}
		line := fmt.Sprintf("input %q expected %q got %q", result.Input, result.Expected, result.Actual)
		if result.Error != "" {
			line += " error: " + result.Error
		}
		input.FailedCases = append(input.FailedCases, line)
	}
	if hiddenFailures > 0 {
		input.Notes = fmt.Sprintf("%d hidden test case(s) also failed.", hiddenFailures)
	}
	return input
}
