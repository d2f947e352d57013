package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mini
}

// fixture is a course with one enrolled student and an assessment over two python questions.
type fixture struct {
	course     models.Course
	student    uint
	outsider   uint
	questions  []models.Question
	assessment models.Assessment
}

func seedFixture(t *testing.T, db *gorm.DB, chances int) fixture {
	t.Helper()
	f := fixture{student: 10, outsider: 11}

	f.course = models.Course{Code: "CS101", Title: "Intro to Programming", IsActive: true}
	require.NoError(t, db.Create(&f.course).Error)
	require.NoError(t, db.Create(&models.Enrollment{CourseID: f.course.ID, UserID: f.student}).Error)

	for i := 0; i < 2; i++ {
		question := models.Question{
			Title:        fmt.Sprintf("Echo %d", i+1),
			Description:  "Print the expected word",
			Language:     grading.LanguagePython,
			StarterCode:  "# write here",
			SolutionCode: "hello",
			TestCases: []grading.TestCase{
				{Input: "", ExpectedOutput: "hello", Marks: 1},
				{Input: "x", ExpectedOutput: "hello", IsHidden: true, Marks: 2},
			},
		}
		require.NoError(t, db.Create(&question).Error)
		f.questions = append(f.questions, question)
	}

	f.assessment = models.Assessment{
		Title:       "Basics",
		CourseID:    f.course.ID,
		TimeLimit:   1,
		MaxMarks:    100,
		Chances:     chances,
		QuestionIDs: []uint{f.questions[0].ID, f.questions[1].ID},
		IsActive:    true,
	}
	require.NoError(t, db.Create(&f.assessment).Error)
	return f
}

// echoRunner grades by treating the submitted code as the program output.
func echoRunner() Runner {
	return grading.NewEngine(grading.EngineConfig{Logger: testLogger()}, map[string]grading.Backend{
		grading.LanguagePython: grading.BackendFunc(func(ctx context.Context, program grading.Program, input string) (grading.Output, error) {
			return grading.Output{Stdout: program.Code, Duration: 4 * time.Millisecond}, nil
		}),
	})
}

type recordedEvent struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.events))
	for _, event := range p.events {
		topics = append(topics, event.topic)
	}
	return topics
}

var _ events.Publisher = (*recordingPublisher)(nil)

type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not consume tick")
	}
}
