package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// CourseService manages courses and their enrollments.
type CourseService interface {
	List(ctx context.Context, actor Actor) ([]dto.CourseResponse, error)
	Get(ctx context.Context, id uint) (dto.CourseResponse, error)
	Create(ctx context.Context, actor Actor, payload dto.CourseRequest) (dto.CourseResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.CourseRequest) (dto.CourseResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Enroll(ctx context.Context, actor Actor, courseID uint, payload dto.EnrollmentRequest) error
	Unenroll(ctx context.Context, actor Actor, courseID, userID uint) error
}

type courseService struct {
	repo      repository.CourseRepository
	validator *validator.Validate
	activity  ActivityRecorder
	catalog   CatalogInvalidator
	logger    zerolog.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo repository.CourseRepository, validator *validator.Validate, activity ActivityRecorder, catalog CatalogInvalidator, logger zerolog.Logger) CourseService {
	if catalog == nil {
		catalog = noopCatalog{}
	}
	return &courseService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		catalog:   catalog,
		logger:    logger.With().Str("component", "course_service").Logger(),
	}
}

func (s *courseService) List(ctx context.Context, actor Actor) ([]dto.CourseResponse, error) {
	filter := repository.CourseFilter{}
	if !actor.IsStaff() {
		filter.ActiveOnly = true
		filter.UserID = &actor.ID
	}

	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.CourseResponse, 0, len(courses))
	for _, course := range courses {
		responses = append(responses, dto.NewCourseResponse(course))
	}
	return responses, nil
}

func (s *courseService) Get(ctx context.Context, id uint) (dto.CourseResponse, error) {
	course, err := s.find(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, err
	}
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) Create(ctx context.Context, actor Actor, payload dto.CourseRequest) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}

	course := models.Course{IsActive: true}
	applyCourseRequest(&course, payload)
	if err := s.repo.Create(ctx, &course); err != nil {
		return dto.CourseResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "course.created", "course", course.ID, map[string]interface{}{"code": course.Code})
	s.logger.Info().Uint("course_id", course.ID).Msg("course created")
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) Update(ctx context.Context, actor Actor, id uint, payload dto.CourseRequest) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}

	course, err := s.find(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, err
	}

	applyCourseRequest(&course, payload)
	if err := s.repo.Update(ctx, &course); err != nil {
		return dto.CourseResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "course.updated", "course", course.ID, nil)
	s.catalog.InvalidateAll(ctx)
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) Delete(ctx context.Context, actor Actor, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "course.deleted", "course", id, nil)
	s.catalog.InvalidateAll(ctx)
	return nil
}

func (s *courseService) Enroll(ctx context.Context, actor Actor, courseID uint, payload dto.EnrollmentRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}
	if _, err := s.find(ctx, courseID); err != nil {
		return err
	}
	if err := s.repo.Enroll(ctx, courseID, payload.UserID); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "course.enrolled", "course", courseID, map[string]interface{}{"user_id": payload.UserID})
	s.catalog.Invalidate(ctx, payload.UserID)
	return nil
}

func (s *courseService) Unenroll(ctx context.Context, actor Actor, courseID, userID uint) error {
	if _, err := s.find(ctx, courseID); err != nil {
		return err
	}
	if err := s.repo.Unenroll(ctx, courseID, userID); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "course.unenrolled", "course", courseID, map[string]interface{}{"user_id": userID})
	s.catalog.Invalidate(ctx, userID)
	return nil
}

func (s *courseService) find(ctx context.Context, id uint) (models.Course, error) {
	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Course{}, ErrCourseNotFound
		}
		return models.Course{}, err
	}
	return course, nil
}

func applyCourseRequest(course *models.Course, payload dto.CourseRequest) {
	course.Code = strings.ToUpper(strings.TrimSpace(payload.Code))
	course.Title = strings.TrimSpace(payload.Title)
	course.Description = strings.TrimSpace(payload.Description)
	if payload.IsActive != nil {
		course.IsActive = *payload.IsActive
	}
}
