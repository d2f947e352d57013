package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// ProctoringService records client-side integrity signals during an assessment.
type ProctoringService interface {
	StartSession(ctx context.Context, userID uint, payload dto.ProctoringStartRequest) (dto.ProctoringSessionResponse, error)
	RecordViolation(ctx context.Context, userID uint, payload dto.ViolationRequest) (dto.ProctoringSessionResponse, error)
	EndSession(ctx context.Context, userID uint, sessionID string) (dto.ProctoringSessionResponse, error)
	ListViolations(ctx context.Context, req dto.ViolationListRequest) ([]dto.ViolationResponse, error)
	ListSessions(ctx context.Context, assessmentID uint) ([]dto.ProctoringSessionResponse, error)
}

type proctoringService struct {
	repo      repository.ProctoringRepository
	access    assessmentAccess
	validator *validator.Validate
	publisher events.Publisher
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewProctoringService constructs the proctoring service.
func NewProctoringService(repo repository.ProctoringRepository, assessments repository.AssessmentRepository, courses repository.CourseRepository, validator *validator.Validate, publisher events.Publisher, logger zerolog.Logger) ProctoringService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &proctoringService{
		repo:      repo,
		access:    assessmentAccess{assessments: assessments, courses: courses},
		validator: validator,
		publisher: publisher,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "proctoring_service").Logger(),
		now:       time.Now,
	}
}

func (s *proctoringService) StartSession(ctx context.Context, userID uint, payload dto.ProctoringStartRequest) (dto.ProctoringSessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProctoringSessionResponse{}, err
	}
	if _, err := s.access.load(ctx, userID, payload.AssessmentID); err != nil {
		return dto.ProctoringSessionResponse{}, err
	}

	session := models.ProctoringSession{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		AssessmentID: payload.AssessmentID,
		StartedAt:    s.now().UTC(),
		CountsByType: datatypes.JSONMap{},
	}
	if err := s.repo.CreateSession(ctx, &session); err != nil {
		return dto.ProctoringSessionResponse{}, err
	}

	s.logger.Info().Str("session_id", session.SessionID).Uint("user_id", userID).Msg("proctoring session started")
	return dto.NewProctoringSessionResponse(session), nil
}

func (s *proctoringService) RecordViolation(ctx context.Context, userID uint, payload dto.ViolationRequest) (dto.ProctoringSessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ProctoringSessionResponse{}, err
	}

	session, err := s.ownedSession(ctx, userID, payload.SessionID)
	if err != nil {
		return dto.ProctoringSessionResponse{}, err
	}
	if !session.Active() {
		return dto.ProctoringSessionResponse{}, ErrProctoringSessionEnded
	}

	timestamp := s.now().UTC()
	if payload.Timestamp != nil && !payload.Timestamp.IsZero() {
		timestamp = payload.Timestamp.UTC()
	}

	violation := models.ProctoringViolation{
		UserID:       userID,
		AssessmentID: session.AssessmentID,
		SessionID:    session.SessionID,
		Type:         models.ViolationType(payload.Type),
		Severity:     payload.Severity,
		Metadata:     s.sanitizeMetadata(payload.Metadata),
		Timestamp:    timestamp,
	}
	updated, err := s.repo.RecordViolation(ctx, &violation)
	if err != nil {
		return dto.ProctoringSessionResponse{}, err
	}

	observability.ProctoringViolations().WithLabelValues(payload.Type).Inc()
	if err := s.publisher.Publish(ctx, events.TopicProctoringViolation, events.ViolationRecorded{
		UserID:       userID,
		AssessmentID: session.AssessmentID,
		SessionID:    session.SessionID,
		Type:         payload.Type,
		Severity:     payload.Severity,
		Timestamp:    timestamp,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish violation")
	}

	s.logger.Debug().
		Str("session_id", session.SessionID).
		Str("type", payload.Type).
		Int("severity", payload.Severity).
		Msg("proctoring violation recorded")
	return dto.NewProctoringSessionResponse(updated), nil
}

func (s *proctoringService) EndSession(ctx context.Context, userID uint, sessionID string) (dto.ProctoringSessionResponse, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return dto.ProctoringSessionResponse{}, err
	}
	session, err := s.repo.EndSession(ctx, sessionID, s.now().UTC())
	if err != nil {
		return dto.ProctoringSessionResponse{}, err
	}
	return dto.NewProctoringSessionResponse(session), nil
}

func (s *proctoringService) ListViolations(ctx context.Context, req dto.ViolationListRequest) ([]dto.ViolationResponse, error) {
	filter := repository.ViolationFilter{SessionID: req.SessionID}
	if req.AssessmentID > 0 {
		filter.AssessmentID = &req.AssessmentID
	}
	if req.UserID > 0 {
		filter.UserID = &req.UserID
	}

	violations, err := s.repo.ListViolations(ctx, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ViolationResponse, 0, len(violations))
	for _, violation := range violations {
		responses = append(responses, dto.NewViolationResponse(violation))
	}
	return responses, nil
}

func (s *proctoringService) ListSessions(ctx context.Context, assessmentID uint) ([]dto.ProctoringSessionResponse, error) {
	sessions, err := s.repo.ListSessions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ProctoringSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, dto.NewProctoringSessionResponse(session))
	}
	return responses, nil
}

func (s *proctoringService) ownedSession(ctx context.Context, userID uint, sessionID string) (models.ProctoringSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ProctoringSession{}, ErrProctoringSessionNotFound
		}
		return models.ProctoringSession{}, err
	}
	if session.UserID != userID {
		return models.ProctoringSession{}, ErrForbidden
	}
	return session, nil
}

// sanitizeMetadata strips markup from string values; nested values are dropped.
func (s *proctoringService) sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		cleanKey := s.sanitizer.Sanitize(key)
		if cleanKey == "" {
			continue
		}
		switch typed := value.(type) {
		case string:
			sanitized[cleanKey] = s.sanitizer.Sanitize(typed)
		case float64, bool, int, int64, nil:
			sanitized[cleanKey] = typed
		}
	}
	return sanitized
}
