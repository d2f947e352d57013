package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	testCaseVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "grading",
		Name:      "test_cases_total",
		Help:      "Number of graded test cases by language and verdict",
	}, []string{"language", "verdict"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assess",
		Subsystem: "grading",
		Name:      "run_duration_seconds",
		Help:      "Wall time of grading runs across all test cases",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})
)

// ErrUnsupportedLanguage indicates no backend is registered for the language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// EngineConfig tunes how test cases are dispatched.
type EngineConfig struct {
	// Concurrency bounds how many test cases run at once; values below 1 run sequentially.
	Concurrency int
	// CaseTimeout bounds each backend call; zero means no per-call deadline.
	CaseTimeout time.Duration
	Logger      zerolog.Logger
}

// Engine dispatches a program to the backend for its language and grades every test case.
type Engine struct {
	backends map[string]Backend
	cfg      EngineConfig
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewEngine builds an engine over the given per-language backends.
func NewEngine(cfg EngineConfig, backends map[string]Backend) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}

	registered := make(map[string]Backend, len(backends))
	for language, backend := range backends {
		if backend != nil {
			registered[NormalizeLanguage(language)] = backend
		}
	}

	return &Engine{
		backends: registered,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "grading_engine").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/grading"),
	}
}

// Supports reports whether a backend is registered for the language.
func (e *Engine) Supports(language string) bool {
	_, ok := e.backends[NormalizeLanguage(language)]
	return ok
}

// Run evaluates the program against every test case independently. A failure in one
// test case is recorded on its result and never aborts the others. Results keep the
// order of the input test cases.
func (e *Engine) Run(ctx context.Context, program Program, cases []TestCase) ([]Result, error) {
	program.Language = NormalizeLanguage(program.Language)
	backend, ok := e.backends[program.Language]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, program.Language)
	}

	ctx, span := e.tracer.Start(ctx, "grading.run", trace.WithAttributes(
		attribute.String("grading.language", program.Language),
		attribute.Int("grading.test_cases", len(cases)),
	))
	defer span.End()

	start := time.Now()
	results := make([]Result, len(cases))

	var group errgroup.Group
	group.SetLimit(e.cfg.Concurrency)
	for i, testCase := range cases {
		group.Go(func() error {
			results[i] = e.runCase(ctx, backend, program, testCase)
			return nil
		})
	}
	_ = group.Wait()

	runDuration.WithLabelValues(program.Language).Observe(time.Since(start).Seconds())

	passed := 0
	for _, result := range results {
		verdict := "failed"
		if result.Passed {
			verdict = "passed"
			passed++
		}
		testCaseVerdicts.WithLabelValues(program.Language, verdict).Inc()
	}
	span.SetAttributes(attribute.Int("grading.passed", passed))

	return results, nil
}

func (e *Engine) runCase(ctx context.Context, backend Backend, program Program, testCase TestCase) Result {
	result := Result{
		Input:    testCase.Input,
		Expected: testCase.ExpectedOutput,
		Hidden:   testCase.IsHidden,
		Marks:    testCase.Marks,
	}

	if err := ctx.Err(); err != nil {
		result.Error = fmt.Sprintf("Execution cancelled: %v", err)
		return result
	}

	callCtx := ctx
	if e.cfg.CaseTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CaseTimeout)
		defer cancel()
	}

	started := time.Now()
	output, err := backend.Execute(callCtx, program, testCase.Input)
	elapsed := output.Duration
	if elapsed <= 0 {
		elapsed = time.Since(started)
	}
	result.ExecutionTime = elapsed.Milliseconds()

	switch {
	case err != nil:
		e.logger.Warn().Err(err).Str("language", program.Language).Msg("test case execution failed")
		result.Error = fmt.Sprintf("Execution failed: %v", err)
	case output.Error != "":
		result.Actual = strings.TrimSpace(output.Stdout)
		result.Error = output.Error
	default:
		result.Actual = strings.TrimSpace(output.Stdout)
		result.Passed = Compare(output.Stdout, testCase.ExpectedOutput)
	}

	return result
}
