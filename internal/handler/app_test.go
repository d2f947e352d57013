package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/session"
)

const (
	adminID   = 1
	studentID = 10
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

// idleTicker never fires, so countdowns only end when stopped.
type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

type testApp struct {
	app      *fiber.App
	db       *gorm.DB
	attempts service.AttemptService
}

// headerAuth stands in for JWT verification: identity comes from test headers.
func headerAuth(c *fiber.Ctx) error {
	if raw := c.Get("X-User-ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-User-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func echoEngine() *grading.Engine {
	return grading.NewEngine(grading.EngineConfig{Logger: zerolog.Nop()}, map[string]grading.Backend{
		grading.LanguagePython: grading.BackendFunc(func(ctx context.Context, program grading.Program, input string) (grading.Output, error) {
			return grading.Output{Stdout: program.Code, Duration: 3 * time.Millisecond}, nil
		}),
	})
}

func newTestApp(t *testing.T, probes map[string]handler.HealthProbe) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	log := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	courses := repository.NewCourseRepository(db)
	questions := repository.NewQuestionRepository(db)
	assessments := repository.NewAssessmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	completions := repository.NewCompletionRepository(db)

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), log)
	catalog := service.NewCatalogCache(redisClient, log)
	reviews := service.NewReviewService(assessments, completions, nil, nil, 50, log)

	registry := session.NewRegistry(func(time.Duration) session.Ticker {
		return idleTicker{ch: make(chan time.Time)}
	})
	t.Cleanup(registry.StopAll)

	attempts := service.NewAttemptService(service.AttemptServiceDeps{
		Assessments: assessments,
		Questions:   questions,
		Courses:     courses,
		Submissions: submissions,
		Completions: completions,
		Store:       session.NewRedisStore(redisClient, session.DefaultTTL),
		Registry:    registry,
		Runner:      echoEngine(),
		Reviews:     reviews,
		Catalog:     catalog,
		Validator:   validate,
	}, log)
	assessmentService := service.NewAssessmentService(service.AssessmentServiceDeps{
		Assessments: assessments,
		Questions:   questions,
		Courses:     courses,
		Submissions: submissions,
		Completions: completions,
		Cache:       redisClient,
		CacheTTL:    time.Minute,
		Validator:   validate,
		Activity:    activity,
		Progress:    attempts,
	}, log)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", AppEnv: "test"}, router.Dependencies{
		CourseHandler:     handler.NewCourseHandler(service.NewCourseService(courses, validate, activity, assessmentService, log), log),
		QuestionHandler:   handler.NewQuestionHandler(service.NewQuestionService(questions, validate, activity, log), log),
		AssessmentHandler: handler.NewAssessmentHandler(assessmentService, log),
		AttemptHandler:    handler.NewAttemptHandler(attempts, nil, log),
		ReviewHandler:     handler.NewReviewHandler(reviews, log),
		ProctoringHandler: handler.NewProctoringHandler(service.NewProctoringService(repository.NewProctoringRepository(db), assessments, courses, validate, nil, log), log),
		SubmissionHandler: handler.NewSubmissionHandler(service.NewSubmissionService(submissions, questions, repository.NewFeedbackRepository(db), nil, log), log),
		ActivityHandler:   handler.NewAdminActivityHandler(activity, log),
		TimerHandler:      handler.NewTimerHandler(attempts, log),
		HealthProbes:      probes,
		JWTMiddleware:     headerAuth,
	})

	return &testApp{app: app, db: db, attempts: attempts}
}

// seedAssessment creates an active course with the student enrolled and a one-question
// python assessment expecting "hello".
func (a *testApp) seedAssessment(t *testing.T) (models.Assessment, models.Question) {
	t.Helper()
	course := models.Course{Code: "CS101", Title: "Intro", IsActive: true}
	require.NoError(t, a.db.Create(&course).Error)
	require.NoError(t, a.db.Create(&models.Enrollment{CourseID: course.ID, UserID: studentID}).Error)

	question := models.Question{
		Title:        "Hello",
		Description:  "Print hello",
		Language:     grading.LanguagePython,
		StarterCode:  "# start",
		SolutionCode: "hello",
		TestCases: []grading.TestCase{
			{ExpectedOutput: "hello"},
			{Input: "1", ExpectedOutput: "hello", IsHidden: true},
		},
	}
	require.NoError(t, a.db.Create(&question).Error)

	assessment := models.Assessment{
		Title:       "Warmup",
		CourseID:    course.ID,
		TimeLimit:   30,
		MaxMarks:    100,
		Chances:     1,
		QuestionIDs: []uint{question.ID},
		IsActive:    true,
	}
	require.NoError(t, a.db.Create(&assessment).Error)
	return assessment, question
}

func (a *testApp) do(t *testing.T, method, path string, userID uint, role string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(userID), 10))
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}
