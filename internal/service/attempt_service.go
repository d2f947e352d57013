package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/events"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/session"
)

const backgroundTimeout = 30 * time.Second

// Runner grades a program against test cases.
type Runner interface {
	Supports(language string) bool
	Run(ctx context.Context, program grading.Program, cases []grading.TestCase) ([]grading.Result, error)
}

// Completer finalizes an assessment for a user.
type Completer interface {
	Complete(ctx context.Context, userID, assessmentID uint, trigger string) (dto.ReviewResponse, error)
}

// AttemptService drives a student's question attempts: editor sessions, the
// assessment countdown, runs and submissions.
type AttemptService interface {
	ProgressProbe
	Enter(ctx context.Context, userID, assessmentID, questionID uint) (dto.QuestionSessionResponse, error)
	Run(ctx context.Context, userID, assessmentID, questionID uint, req dto.CodeRequest) (dto.RunResponse, error)
	Reset(ctx context.Context, userID, assessmentID, questionID uint) (dto.QuestionSessionResponse, error)
	Save(ctx context.Context, userID, assessmentID, questionID uint, req dto.CodeRequest) (dto.SaveResponse, error)
	Submit(ctx context.Context, userID, assessmentID, questionID uint) (dto.SubmitResponse, error)
	Restart(ctx context.Context, userID, assessmentID uint) (dto.RestartResponse, error)
	Leave(ctx context.Context, userID, assessmentID uint) error
	Subscribe(userID, assessmentID uint) (<-chan session.Tick, func())
	Shutdown(ctx context.Context)
}

// AttemptConfig tunes session handling.
type AttemptConfig struct {
	SessionTTL    time.Duration
	AutosaveTicks int
}

// AttemptServiceDeps groups the collaborators of the attempt service.
type AttemptServiceDeps struct {
	Assessments repository.AssessmentRepository
	Questions   repository.QuestionRepository
	Courses     repository.CourseRepository
	Submissions repository.SubmissionRepository
	Completions repository.CompletionRepository
	Store       session.Store
	Registry    *session.Registry
	Runner      Runner
	Reviews     Completer
	Publisher   events.Publisher
	Catalog     CatalogInvalidator
	Validator   *validator.Validate
	Config      AttemptConfig
}

type attemptOwner struct {
	userID       uint
	assessmentID uint
}

// liveAttempt is the in-memory editor state of the question a user has open.
type liveAttempt struct {
	mu           sync.Mutex
	assessment   models.Assessment
	question     models.Question
	code         string
	runCode      string
	results      []grading.Result
	state        session.State
	sessionStart time.Time
	lastSaved    time.Time
	remaining    int
	expired      bool
}

func (a *liveAttempt) snapshot(remaining int, now time.Time) session.Snapshot {
	a.remaining = remaining
	a.lastSaved = now
	return session.Snapshot{
		Code:             a.code,
		TimeRemaining:    remaining,
		SessionStartTime: a.sessionStart,
		QuestionID:       a.question.ID,
		LastSaved:        now,
		TestResults:      append([]grading.Result(nil), a.results...),
		State:            a.state,
	}
}

type attemptService struct {
	access      assessmentAccess
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
	completions repository.CompletionRepository
	store       session.Store
	registry    *session.Registry
	runner      Runner
	reviews     Completer
	publisher   events.Publisher
	catalog     CatalogInvalidator
	validator   *validator.Validate
	cfg         AttemptConfig
	logger      zerolog.Logger
	now         func() time.Time

	mu   sync.Mutex
	live map[attemptOwner]*liveAttempt
	// startMu serialises countdown creation; countdown callbacks never take it.
	startMu sync.Mutex
}

// NewAttemptService constructs the attempt service.
func NewAttemptService(deps AttemptServiceDeps, logger zerolog.Logger) AttemptService {
	cfg := deps.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.AutosaveTicks <= 0 {
		cfg.AutosaveTicks = session.DefaultSaveEvery
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = noopCatalog{}
	}

	return &attemptService{
		access:      assessmentAccess{assessments: deps.Assessments, courses: deps.Courses},
		questions:   deps.Questions,
		submissions: deps.Submissions,
		completions: deps.Completions,
		store:       deps.Store,
		registry:    deps.Registry,
		runner:      deps.Runner,
		reviews:     deps.Reviews,
		publisher:   publisher,
		catalog:     catalog,
		validator:   deps.Validator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "attempt_service").Logger(),
		now:         time.Now,
		live:        make(map[attemptOwner]*liveAttempt),
	}
}

// Enter opens a question. A live snapshot of the same question restores the code,
// results and timer; otherwise the editor starts from the starter code. The
// countdown only restarts from the full limit when nothing of the assessment is in progress.
func (s *attemptService) Enter(ctx context.Context, userID, assessmentID, questionID uint) (dto.QuestionSessionResponse, error) {
	assessment, question, err := s.prepare(ctx, userID, assessmentID, questionID)
	if err != nil {
		return dto.QuestionSessionResponse{}, err
	}
	if err := s.ensureChances(ctx, userID, assessment); err != nil {
		return dto.QuestionSessionResponse{}, err
	}

	now := s.now()
	attempt := &liveAttempt{
		assessment:   assessment,
		question:     question,
		code:         question.StarterCode,
		state:        session.StateIdle,
		sessionStart: now,
	}

	restored := false
	key := session.Key{AssessmentID: assessmentID, QuestionID: questionID, UserID: userID}
	snapshot, err := s.store.Get(ctx, key)
	switch {
	case err == nil && snapshot.Restorable(questionID, now, s.cfg.SessionTTL):
		attempt.code = snapshot.Code
		attempt.results = snapshot.TestResults
		attempt.state = session.RestoredState(snapshot)
		attempt.sessionStart = snapshot.SessionStartTime
		attempt.lastSaved = snapshot.LastSaved
		if attempt.state != session.StateIdle {
			attempt.runCode = snapshot.Code
		}
		restored = true
	case err != nil && !errors.Is(err, session.ErrSnapshotNotFound):
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to read session snapshot")
	}

	remaining := s.remainingFor(ctx, userID, assessment)
	owner := attemptOwner{userID: userID, assessmentID: assessmentID}

	if previous := s.swapLive(owner, attempt); previous != nil && previous.question.ID != questionID {
		s.flush(ctx, userID, previous, remaining)
	}
	countdown := s.ensureCountdown(userID, assessment, remaining)
	if countdown != nil {
		remaining = countdown.Remaining()
	}

	attempt.mu.Lock()
	response := s.sessionResponse(attempt, remaining, restored)
	saved := attempt.snapshot(remaining, now)
	attempt.mu.Unlock()
	s.put(ctx, key, saved)

	return response, nil
}

func (s *attemptService) Run(ctx context.Context, userID, assessmentID, questionID uint, req dto.CodeRequest) (dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RunResponse{}, err
	}
	attempt, err := s.attempt(userID, assessmentID, questionID)
	if err != nil {
		return dto.RunResponse{}, err
	}
	if !s.runner.Supports(attempt.question.Language) {
		return dto.RunResponse{}, ErrUnsupportedLanguage
	}

	attempt.mu.Lock()
	if attempt.expired {
		attempt.mu.Unlock()
		return dto.RunResponse{}, ErrTimeExpired
	}
	previous := attempt.state
	next, err := session.Next(previous, session.ActionRun)
	if err != nil {
		attempt.mu.Unlock()
		return dto.RunResponse{}, err
	}
	attempt.state = next
	attempt.code = req.Code
	program := grading.Program{Language: attempt.question.Language, Code: req.Code}
	cases := append([]grading.TestCase(nil), attempt.question.TestCases...)
	attempt.mu.Unlock()

	results, err := s.runner.Run(ctx, program, cases)

	attempt.mu.Lock()
	if err != nil {
		attempt.state = previous
		attempt.mu.Unlock()
		if errors.Is(err, grading.ErrUnsupportedLanguage) {
			return dto.RunResponse{}, ErrUnsupportedLanguage
		}
		return dto.RunResponse{}, err
	}
	attempt.state, _ = session.Next(attempt.state, session.ActionFinish)
	attempt.results = results
	attempt.runCode = program.Code
	remaining := s.currentRemaining(userID, attempt)
	saved := attempt.snapshot(remaining, s.now())
	state := attempt.state
	attempt.mu.Unlock()

	s.put(ctx, session.Key{AssessmentID: assessmentID, QuestionID: questionID, UserID: userID}, saved)

	score := grading.Aggregate(results)
	s.logger.Debug().
		Uint("user_id", userID).
		Uint("question_id", questionID).
		Int("passed", score.PassedTests).
		Int("total", score.TotalTests).
		Msg("code run")

	return dto.RunResponse{
		State:         string(state),
		Results:       dto.NewTestResultResponses(results),
		Score:         dto.NewScoreResponse(score),
		TimeRemaining: remaining,
	}, nil
}

func (s *attemptService) Reset(ctx context.Context, userID, assessmentID, questionID uint) (dto.QuestionSessionResponse, error) {
	attempt, err := s.attempt(userID, assessmentID, questionID)
	if err != nil {
		return dto.QuestionSessionResponse{}, err
	}

	attempt.mu.Lock()
	next, err := session.Next(attempt.state, session.ActionReset)
	if err != nil {
		attempt.mu.Unlock()
		return dto.QuestionSessionResponse{}, err
	}
	attempt.state = next
	attempt.code = attempt.question.StarterCode
	attempt.runCode = ""
	attempt.results = nil
	remaining := s.currentRemaining(userID, attempt)
	saved := attempt.snapshot(remaining, s.now())
	response := s.sessionResponse(attempt, remaining, false)
	attempt.mu.Unlock()

	s.put(ctx, session.Key{AssessmentID: assessmentID, QuestionID: questionID, UserID: userID}, saved)
	return response, nil
}

func (s *attemptService) Save(ctx context.Context, userID, assessmentID, questionID uint, req dto.CodeRequest) (dto.SaveResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SaveResponse{}, err
	}
	attempt, err := s.attempt(userID, assessmentID, questionID)
	if err != nil {
		return dto.SaveResponse{}, err
	}

	attempt.mu.Lock()
	if attempt.state != session.StateSubmitted {
		attempt.code = req.Code
	}
	remaining := s.currentRemaining(userID, attempt)
	saved := attempt.snapshot(remaining, s.now())
	attempt.mu.Unlock()

	key := session.Key{AssessmentID: assessmentID, QuestionID: questionID, UserID: userID}
	if err := s.store.Put(ctx, key, saved); err != nil {
		return dto.SaveResponse{}, err
	}
	return dto.SaveResponse{LastSaved: saved.LastSaved, TimeRemaining: remaining}, nil
}

// Submit persists the latest run of the question and moves on to the next question,
// completing the assessment after the last one.
func (s *attemptService) Submit(ctx context.Context, userID, assessmentID, questionID uint) (dto.SubmitResponse, error) {
	attempt, err := s.attempt(userID, assessmentID, questionID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	attempt.mu.Lock()
	if attempt.expired {
		attempt.mu.Unlock()
		return dto.SubmitResponse{}, ErrTimeExpired
	}
	previous := attempt.state
	next, err := session.Next(previous, session.ActionSubmit)
	if err != nil {
		attempt.mu.Unlock()
		return dto.SubmitResponse{}, err
	}
	attempt.state = next

	remaining := s.currentRemaining(userID, attempt)
	score := grading.Aggregate(attempt.results)
	timeSpent := attempt.assessment.TimeLimitSeconds() - remaining
	if timeSpent < 0 {
		timeSpent = 0
	}
	submission := models.Submission{
		UserID:           userID,
		AssessmentID:     assessmentID,
		QuestionID:       questionID,
		Code:             attempt.runCode,
		Language:         attempt.question.Language,
		Status:           score.Status,
		Score:            score.Percentage,
		TestCasesResults: append([]grading.Result(nil), attempt.results...),
		PassedTests:      score.PassedTests,
		TotalTests:       score.TotalTests,
		TimeSpent:        timeSpent,
		ExecutionTimeMs:  score.ExecutionTimeMs,
		SubmittedAt:      s.now().UTC(),
	}
	assessment := attempt.assessment
	attempt.mu.Unlock()

	if err := s.submissions.Create(ctx, &submission); err != nil {
		attempt.mu.Lock()
		attempt.state = previous
		attempt.mu.Unlock()
		return dto.SubmitResponse{}, err
	}

	s.logger.Info().
		Uint("user_id", userID).
		Uint("assessment_id", assessmentID).
		Uint("question_id", questionID).
		Str("status", submission.Status).
		Int("score", submission.Score).
		Msg("question submitted")

	s.catalog.Invalidate(ctx, userID)

	response := dto.SubmitResponse{SubmissionID: submission.ID, Score: dto.NewScoreResponse(score)}
	if nextID, ok := assessment.NextQuestionID(questionID); ok {
		attempt.mu.Lock()
		saved := attempt.snapshot(remaining, s.now())
		attempt.mu.Unlock()
		s.put(ctx, session.Key{AssessmentID: assessmentID, QuestionID: questionID, UserID: userID}, saved)
		response.NextQuestionID = &nextID
		return response, nil
	}

	s.stopCountdown(userID, assessmentID)
	s.dropLive(attemptOwner{userID: userID, assessmentID: assessmentID}, nil)
	review, err := s.reviews.Complete(ctx, userID, assessmentID, TriggerSubmitted)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	if _, err := s.store.DeleteAssessment(ctx, assessmentID, userID); err != nil {
		s.logger.Warn().Err(err).Uint("assessment_id", assessmentID).Msg("failed to clear session snapshots")
	}

	response.Completed = true
	response.Review = &review
	return response, nil
}

// Restart clears every snapshot of the assessment and stops its countdown so the
// next question entered starts with the full time limit.
func (s *attemptService) Restart(ctx context.Context, userID, assessmentID uint) (dto.RestartResponse, error) {
	assessment, err := s.access.load(ctx, userID, assessmentID)
	if err != nil {
		return dto.RestartResponse{}, err
	}
	if err := s.ensureNotCompleted(ctx, userID, assessmentID); err != nil {
		return dto.RestartResponse{}, err
	}

	s.stopCountdown(userID, assessmentID)
	s.dropLive(attemptOwner{userID: userID, assessmentID: assessmentID}, nil)

	cleared, err := s.store.DeleteAssessment(ctx, assessmentID, userID)
	if err != nil {
		return dto.RestartResponse{}, err
	}

	s.logger.Info().Uint("user_id", userID).Uint("assessment_id", assessmentID).Int("cleared", cleared).Msg("session restarted")
	return dto.RestartResponse{Cleared: cleared, TimeRemaining: assessment.TimeLimitSeconds()}, nil
}

// Leave stops the countdown of the assessment and flushes the open question.
func (s *attemptService) Leave(ctx context.Context, userID, assessmentID uint) error {
	remaining, running := s.stopCountdown(userID, assessmentID)
	attempt := s.dropLive(attemptOwner{userID: userID, assessmentID: assessmentID}, nil)
	if attempt == nil {
		return nil
	}

	attempt.mu.Lock()
	if !running {
		remaining = attempt.remaining
	}
	saved := attempt.snapshot(remaining, s.now())
	attempt.mu.Unlock()

	key := session.Key{AssessmentID: assessmentID, QuestionID: saved.QuestionID, UserID: userID}
	return s.store.Put(ctx, key, saved)
}

// RemainingTime reports the time left of an assessment the user already started.
func (s *attemptService) RemainingTime(ctx context.Context, userID uint, assessment models.Assessment) (int, bool) {
	if countdown, ok := s.registry.Get(userID, assessment.ID); ok {
		return countdown.Remaining(), true
	}
	return s.snapshotRemaining(ctx, userID, assessment.ID)
}

func (s *attemptService) Subscribe(userID, assessmentID uint) (<-chan session.Tick, func()) {
	return s.registry.Subscribe(userID, assessmentID)
}

// Shutdown flushes every open question and stops all countdowns.
func (s *attemptService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	live := make(map[attemptOwner]*liveAttempt, len(s.live))
	for owner, attempt := range s.live {
		live[owner] = attempt
	}
	s.mu.Unlock()

	for owner, attempt := range live {
		remaining := s.currentRemainingLocked(owner.userID, attempt)
		s.flush(ctx, owner.userID, attempt, remaining)
	}
	s.registry.StopAll()
	observability.CountdownsActive().Set(0)
}

func (s *attemptService) prepare(ctx context.Context, userID, assessmentID, questionID uint) (models.Assessment, models.Question, error) {
	assessment, err := s.access.load(ctx, userID, assessmentID)
	if err != nil {
		return models.Assessment{}, models.Question{}, err
	}
	if assessment.QuestionIndex(questionID) < 0 {
		return models.Assessment{}, models.Question{}, ErrQuestionNotInAssessment
	}
	if err := s.ensureNotCompleted(ctx, userID, assessmentID); err != nil {
		return models.Assessment{}, models.Question{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, models.Question{}, ErrQuestionNotFound
		}
		return models.Assessment{}, models.Question{}, err
	}
	return assessment, question, nil
}

// ensureChances refuses to open a fresh attempt once every chance was used.
// An attempt already under way may always continue.
func (s *attemptService) ensureChances(ctx context.Context, userID uint, assessment models.Assessment) error {
	if _, inProgress := s.RemainingTime(ctx, userID, assessment); inProgress {
		return nil
	}
	used, err := s.submissions.CountForAssessment(ctx, userID, assessment.ID)
	if err != nil {
		return err
	}
	if ChancesRemaining(assessment.Chances, used) == 0 {
		return ErrChancesExhausted
	}
	return nil
}

func (s *attemptService) ensureNotCompleted(ctx context.Context, userID, assessmentID uint) error {
	_, err := s.completions.Get(ctx, userID, assessmentID)
	switch {
	case err == nil:
		return ErrAssessmentCompleted
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	default:
		return err
	}
}

// remainingFor picks the time left when entering a question: the running countdown,
// then the most recently saved snapshot of the assessment, and finally the full limit.
func (s *attemptService) remainingFor(ctx context.Context, userID uint, assessment models.Assessment) int {
	if countdown, ok := s.registry.Get(userID, assessment.ID); ok {
		return countdown.Remaining()
	}
	if remaining, ok := s.snapshotRemaining(ctx, userID, assessment.ID); ok {
		return remaining
	}
	return assessment.TimeLimitSeconds()
}

func (s *attemptService) snapshotRemaining(ctx context.Context, userID, assessmentID uint) (int, bool) {
	snapshots, err := s.store.ListAssessment(ctx, assessmentID, userID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("assessment_id", assessmentID).Msg("failed to list session snapshots")
		return 0, false
	}

	now := s.now()
	var latest *session.Snapshot
	for _, snapshot := range snapshots {
		if snapshot.Expired(now, s.cfg.SessionTTL) {
			continue
		}
		if latest == nil || snapshot.LastSaved.After(latest.LastSaved) {
			candidate := snapshot
			latest = &candidate
		}
	}
	if latest == nil {
		return 0, false
	}
	return latest.TimeRemaining, true
}

func (s *attemptService) ensureCountdown(userID uint, assessment models.Assessment, remaining int) *session.Countdown {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if countdown, ok := s.registry.Get(userID, assessment.ID); ok {
		return countdown
	}

	assessmentID := assessment.ID
	countdown := s.registry.Start(userID, assessmentID, session.CountdownConfig{
		Remaining: remaining,
		SaveEvery: s.cfg.AutosaveTicks,
		OnSave: func(left int) {
			s.autosave(userID, assessmentID, left)
		},
		OnExpire: func() {
			s.expire(userID, assessmentID)
		},
	})
	observability.CountdownsActive().Set(float64(s.registry.Active()))
	return countdown
}

func (s *attemptService) stopCountdown(userID, assessmentID uint) (int, bool) {
	remaining, ok := s.registry.Stop(userID, assessmentID)
	observability.CountdownsActive().Set(float64(s.registry.Active()))
	return remaining, ok
}

func (s *attemptService) autosave(userID, assessmentID uint, remaining int) {
	s.mu.Lock()
	attempt := s.live[attemptOwner{userID: userID, assessmentID: assessmentID}]
	s.mu.Unlock()
	if attempt == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	s.flush(ctx, userID, attempt, remaining)
}

// expire runs when the countdown reaches zero: the open question is flushed and the
// assessment is completed from whatever was submitted.
func (s *attemptService) expire(userID, assessmentID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	owner := attemptOwner{userID: userID, assessmentID: assessmentID}
	s.mu.Lock()
	attempt := s.live[owner]
	s.mu.Unlock()
	if attempt != nil {
		attempt.mu.Lock()
		attempt.expired = true
		attempt.mu.Unlock()
		s.flush(ctx, userID, attempt, 0)
	}
	observability.CountdownsActive().Set(float64(s.registry.Active()))

	if err := s.publisher.Publish(ctx, events.TopicSessionExpired, events.SessionExpired{UserID: userID, AssessmentID: assessmentID}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish session expiry")
	}

	if _, err := s.reviews.Complete(ctx, userID, assessmentID, TriggerExpired); err != nil {
		s.logger.Error().Err(err).Uint("user_id", userID).Uint("assessment_id", assessmentID).Msg("failed to complete expired assessment")
	}
	s.dropLive(owner, attempt)
	s.logger.Info().Uint("user_id", userID).Uint("assessment_id", assessmentID).Msg("assessment time expired")
}

func (s *attemptService) flush(ctx context.Context, userID uint, attempt *liveAttempt, remaining int) {
	attempt.mu.Lock()
	saved := attempt.snapshot(remaining, s.now())
	assessmentID := attempt.assessment.ID
	attempt.mu.Unlock()
	s.put(ctx, session.Key{AssessmentID: assessmentID, QuestionID: saved.QuestionID, UserID: userID}, saved)
}

func (s *attemptService) put(ctx context.Context, key session.Key, snapshot session.Snapshot) {
	if err := s.store.Put(ctx, key, snapshot); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to write session snapshot")
	}
}

func (s *attemptService) attempt(userID, assessmentID, questionID uint) (*liveAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.live[attemptOwner{userID: userID, assessmentID: assessmentID}]
	if !ok || attempt.question.ID != questionID {
		return nil, ErrSessionNotStarted
	}
	return attempt, nil
}

func (s *attemptService) swapLive(owner attemptOwner, attempt *liveAttempt) *liveAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.live[owner]
	s.live[owner] = attempt
	return previous
}

// dropLive removes the open attempt. When expected is non-nil it is only removed if
// it is still the current one.
func (s *attemptService) dropLive(owner attemptOwner, expected *liveAttempt) *liveAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.live[owner]
	if !ok || (expected != nil && current != expected) {
		return nil
	}
	delete(s.live, owner)
	return current
}

// currentRemaining must be called with attempt.mu held.
func (s *attemptService) currentRemaining(userID uint, attempt *liveAttempt) int {
	if countdown, ok := s.registry.Get(userID, attempt.assessment.ID); ok {
		return countdown.Remaining()
	}
	return attempt.remaining
}

func (s *attemptService) currentRemainingLocked(userID uint, attempt *liveAttempt) int {
	attempt.mu.Lock()
	defer attempt.mu.Unlock()
	return s.currentRemaining(userID, attempt)
}

func (s *attemptService) sessionResponse(attempt *liveAttempt, remaining int, restored bool) dto.QuestionSessionResponse {
	response := dto.QuestionSessionResponse{
		AssessmentID:  attempt.assessment.ID,
		Question:      dto.NewStudentQuestionResponse(attempt.question),
		Code:          attempt.code,
		State:         string(attempt.state),
		TimeRemaining: remaining,
		TestResults:   dto.NewTestResultResponses(attempt.results),
		Restored:      restored,
	}
	if restored && !attempt.lastSaved.IsZero() {
		lastSaved := attempt.lastSaved
		response.LastSaved = &lastSaved
	}
	return response
}
