package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// CatalogInvalidator drops cached student catalogs after data they depend on changes.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, userID uint)
	InvalidateAll(ctx context.Context)
}

type noopCatalog struct{}

// catalogCache owns the Redis keys of cached student catalogs.
type catalogCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewCatalogCache returns an invalidator over the Redis catalog cache. A nil client
// yields a no-op invalidator.
func NewCatalogCache(client *redis.Client, logger zerolog.Logger) CatalogInvalidator {
	if client == nil {
		return noopCatalog{}
	}
	return catalogCache{client: client, logger: logger.With().Str("component", "catalog_cache").Logger()}
}

func (c catalogCache) Invalidate(ctx context.Context, userID uint) {
	if err := c.client.Del(ctx, catalogCacheKey(userID)).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to invalidate catalog cache")
	}
}

func (c catalogCache) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, "catalog:student:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to scan catalog cache")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate catalog cache")
	}
}

// SubscribeCatalogInvalidation drops a student's cached catalog whenever one of their
// assessments completes, on this node or another.
func SubscribeCatalogInvalidation(bus *events.Bus, catalog CatalogInvalidator, logger zerolog.Logger) {
	bus.Subscribe(events.TopicAssessmentCompleted, func(ctx context.Context, envelope events.Envelope) {
		payload, err := events.Decode[events.AssessmentCompleted](envelope)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to decode completion event")
			return
		}
		catalog.Invalidate(ctx, payload.UserID)
	})
}

func (noopCatalog) Invalidate(context.Context, uint) {}
func (noopCatalog) InvalidateAll(context.Context)    {}

// ProgressProbe reports the remaining time of an assessment already in progress.
type ProgressProbe interface {
	RemainingTime(ctx context.Context, userID uint, assessment models.Assessment) (int, bool)
}

// AssessmentService manages assessments for staff and serves the student catalog.
type AssessmentService interface {
	CatalogInvalidator
	List(ctx context.Context, courseID uint) ([]dto.AssessmentResponse, error)
	Get(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	Create(ctx context.Context, actor Actor, payload dto.AssessmentRequest) (dto.AssessmentResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.AssessmentRequest) (dto.AssessmentResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Catalog(ctx context.Context, userID uint) (dto.StudentCatalogResponse, error)
	Start(ctx context.Context, userID, assessmentID uint) (dto.StartAssessmentResponse, error)
}

// AssessmentServiceDeps groups the collaborators of the assessment service.
type AssessmentServiceDeps struct {
	Assessments repository.AssessmentRepository
	Questions   repository.QuestionRepository
	Courses     repository.CourseRepository
	Submissions repository.SubmissionRepository
	Completions repository.CompletionRepository
	Cache       *redis.Client
	CacheTTL    time.Duration
	Validator   *validator.Validate
	Activity    ActivityRecorder
	Progress    ProgressProbe
}

type assessmentService struct {
	access      assessmentAccess
	assessments repository.AssessmentRepository
	questions   repository.QuestionRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	completions repository.CompletionRepository
	cache       *redis.Client
	catalog     CatalogInvalidator
	cacheTTL    time.Duration
	validator   *validator.Validate
	activity    ActivityRecorder
	progress    ProgressProbe
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(deps AssessmentServiceDeps, logger zerolog.Logger) AssessmentService {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &assessmentService{
		access:      assessmentAccess{assessments: deps.Assessments, courses: deps.Courses},
		assessments: deps.Assessments,
		questions:   deps.Questions,
		courses:     deps.Courses,
		submissions: deps.Submissions,
		completions: deps.Completions,
		cache:       deps.Cache,
		catalog:     NewCatalogCache(deps.Cache, logger),
		cacheTTL:    ttl,
		validator:   deps.Validator,
		activity:    deps.Activity,
		progress:    deps.Progress,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assessmentService) List(ctx context.Context, courseID uint) ([]dto.AssessmentResponse, error) {
	filter := repository.AssessmentFilter{}
	if courseID > 0 {
		filter.CourseIDs = []uint{courseID}
	}
	assessments, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		responses = append(responses, dto.NewAssessmentResponse(assessment))
	}
	return responses, nil
}

func (s *assessmentService) Get(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.find(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) Create(ctx context.Context, actor Actor, payload dto.AssessmentRequest) (dto.AssessmentResponse, error) {
	if err := s.validate(ctx, payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{IsActive: true, MaxMarks: 100}
	applyAssessmentRequest(&assessment, payload)
	if err := s.assessments.Create(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "assessment.created", "assessment", assessment.ID, map[string]interface{}{
		"course_id": assessment.CourseID,
		"questions": len(assessment.QuestionIDs),
	})
	s.InvalidateAll(ctx)
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) Update(ctx context.Context, actor Actor, id uint, payload dto.AssessmentRequest) (dto.AssessmentResponse, error) {
	assessment, err := s.find(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	if err := s.validate(ctx, payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	applyAssessmentRequest(&assessment, payload)
	if err := s.assessments.Update(ctx, &assessment); err != nil {
		return dto.AssessmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "assessment.updated", "assessment", assessment.ID, nil)
	s.InvalidateAll(ctx)
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) Delete(ctx context.Context, actor Actor, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.assessments.Delete(ctx, id); err != nil {
		return err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "assessment.deleted", "assessment", id, nil)
	s.InvalidateAll(ctx)
	return nil
}

// Catalog lists the active assessments of the student's courses with completion
// and remaining-chance information.
func (s *assessmentService) Catalog(ctx context.Context, userID uint) (dto.StudentCatalogResponse, error) {
	cacheKey := catalogCacheKey(userID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StudentCatalogResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("user_id", userID).Msg("catalog cache hit")
				response.CacheHit = true
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read catalog cache")
		}
	}

	courseIDs, err := s.courses.EnrolledCourseIDs(ctx, userID)
	if err != nil {
		return dto.StudentCatalogResponse{}, err
	}
	assessments, err := s.assessments.List(ctx, repository.AssessmentFilter{CourseIDs: courseIDs, ActiveOnly: true})
	if err != nil {
		return dto.StudentCatalogResponse{}, err
	}
	completions, err := s.completions.ListByUser(ctx, userID)
	if err != nil {
		return dto.StudentCatalogResponse{}, err
	}
	counts, err := s.submissions.CountByAssessment(ctx, userID)
	if err != nil {
		return dto.StudentCatalogResponse{}, err
	}

	completed := make(map[uint]models.AssessmentCompletion, len(completions))
	for _, completion := range completions {
		completed[completion.AssessmentID] = completion
	}

	response := dto.StudentCatalogResponse{
		Items:       make([]dto.StudentAssessmentResponse, 0, len(assessments)),
		GeneratedAt: s.now().UTC(),
	}
	for _, assessment := range assessments {
		item := dto.StudentAssessmentResponse{
			AssessmentResponse: dto.NewAssessmentResponse(assessment),
			QuestionCount:      len(assessment.QuestionIDs),
			ChancesRemaining:   ChancesRemaining(assessment.Chances, counts[assessment.ID]),
		}
		if completion, ok := completed[assessment.ID]; ok {
			score := completion.Score
			completedAt := completion.CompletedAt
			item.Completed = true
			item.Score = &score
			item.CompletedAt = &completedAt
		}
		response.Items = append(response.Items, item)
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store catalog cache")
			}
		}
	}

	return response, nil
}

// Start checks that the student may take the assessment and tells the client
// which question to open and how much time is left.
func (s *assessmentService) Start(ctx context.Context, userID, assessmentID uint) (dto.StartAssessmentResponse, error) {
	assessment, err := s.access.load(ctx, userID, assessmentID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	if len(assessment.QuestionIDs) == 0 {
		return dto.StartAssessmentResponse{}, ErrQuestionNotFound
	}

	if _, err := s.completions.Get(ctx, userID, assessmentID); err == nil {
		return dto.StartAssessmentResponse{}, ErrAssessmentCompleted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.StartAssessmentResponse{}, err
	}

	used, err := s.submissions.CountForAssessment(ctx, userID, assessmentID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	remaining := ChancesRemaining(assessment.Chances, used)

	timeRemaining := assessment.TimeLimitSeconds()
	inProgress := false
	if s.progress != nil {
		if left, ok := s.progress.RemainingTime(ctx, userID, assessment); ok {
			timeRemaining = left
			inProgress = true
		}
	}
	// Exhausted chances block a retake, not the attempt already under way.
	if remaining == 0 && !inProgress {
		return dto.StartAssessmentResponse{}, ErrChancesExhausted
	}

	latest, err := s.submissions.LatestByQuestion(ctx, userID, assessmentID)
	if err != nil {
		return dto.StartAssessmentResponse{}, err
	}
	questionID := assessment.QuestionIDs[0]
	for _, id := range assessment.QuestionIDs {
		if _, submitted := latest[id]; !submitted {
			questionID = id
			break
		}
	}

	return dto.StartAssessmentResponse{
		Assessment:       dto.NewAssessmentResponse(assessment),
		QuestionID:       questionID,
		TimeRemaining:    timeRemaining,
		ChancesRemaining: remaining,
	}, nil
}

func (s *assessmentService) Invalidate(ctx context.Context, userID uint) {
	s.catalog.Invalidate(ctx, userID)
}

func (s *assessmentService) InvalidateAll(ctx context.Context) {
	s.catalog.InvalidateAll(ctx)
}

func (s *assessmentService) validate(ctx context.Context, payload dto.AssessmentRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}
	if _, err := s.courses.GetByID(ctx, payload.CourseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		return err
	}

	found, err := s.questions.GetByIDs(ctx, payload.QuestionIDs)
	if err != nil {
		return err
	}
	if len(found) != len(payload.QuestionIDs) {
		known := make(map[uint]struct{}, len(found))
		for _, question := range found {
			known[question.ID] = struct{}{}
		}
		missing := make([]string, 0)
		for _, id := range payload.QuestionIDs {
			if _, ok := known[id]; !ok {
				missing = append(missing, fmt.Sprint(id))
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownQuestions, strings.Join(missing, ", "))
	}
	return nil
}

func (s *assessmentService) find(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

// assessmentAccess loads an assessment on behalf of a student.
type assessmentAccess struct {
	assessments repository.AssessmentRepository
	courses     repository.CourseRepository
}

func (a assessmentAccess) load(ctx context.Context, userID, assessmentID uint) (models.Assessment, error) {
	assessment, err := a.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	if !assessment.IsActive {
		return models.Assessment{}, ErrAssessmentNotFound
	}

	enrolled, err := a.courses.IsEnrolled(ctx, assessment.CourseID, userID)
	if err != nil {
		return models.Assessment{}, err
	}
	if !enrolled {
		return models.Assessment{}, ErrNotEnrolled
	}
	return assessment, nil
}

// ChancesRemaining is max(0, chances - used).
func ChancesRemaining(chances int, used int64) int {
	left := int64(chances) - used
	if left < 0 {
		return 0
	}
	return int(left)
}

func catalogCacheKey(userID uint) string {
	return fmt.Sprintf("catalog:student:%d", userID)
}

func applyAssessmentRequest(assessment *models.Assessment, payload dto.AssessmentRequest) {
	assessment.Title = strings.TrimSpace(payload.Title)
	assessment.Description = strings.TrimSpace(payload.Description)
	assessment.CourseID = payload.CourseID
	assessment.Difficulty = strings.ToLower(strings.TrimSpace(payload.Difficulty))
	assessment.TimeLimit = payload.TimeLimit
	assessment.Chances = payload.Chances
	assessment.QuestionIDs = append([]uint{}, payload.QuestionIDs...)
	if payload.MaxMarks > 0 {
		assessment.MaxMarks = payload.MaxMarks
	}
	if payload.IsActive != nil {
		assessment.IsActive = *payload.IsActive
	}
}
