package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	feedbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assess",
		Subsystem: "feedback",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI feedback requests",
	}, []string{"model"})

	feedbackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "feedback",
		Name:      "request_failures_total",
		Help:      "Number of AI feedback requests that failed",
	}, []string{"model"})
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("no choices returned from openai")

// OpenAIConfig defines configuration options for the OpenAI reviewer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIReviewer implements Reviewer with the chat completion API.
type OpenAIReviewer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIReviewer builds a reviewer. BaseURL overrides the API endpoint.
func NewOpenAIReviewer(cfg OpenAIConfig) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIReviewer{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-assessment-api/pkg/ai"),
		logger: cfg.Logger.With().Str("component", "openai_reviewer").Logger(),
	}, nil
}

// Provider implements Reviewer.
func (r *OpenAIReviewer) Provider() string {
	return "openai"
}

// Review asks the model for JSON feedback and parses it.
func (r *OpenAIReviewer) Review(parent context.Context, input FeedbackInput) (FeedbackResult, error) {
	ctx, span := r.tracer.Start(parent, "openai.review", trace.WithAttributes(
		attribute.String("ai.model", r.cfg.Model),
		attribute.String("ai.language", input.Language),
	))
	defer span.End()

	fail := func(err error) (FeedbackResult, error) {
		feedbackFailures.WithLabelValues(r.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return FeedbackResult{}, err
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reviewerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	feedbackDuration.WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(fmt.Errorf("openai review: %w", err))
	}
	if len(resp.Choices) == 0 {
		return fail(ErrEmptyCompletion)
	}

	result, err := parseFeedback(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return fail(err)
	}

	r.logger.Debug().Int("total_tokens", resp.Usage.TotalTokens).Msg("feedback generated")
	return result, nil
}

const reviewerSystemPrompt = "You review solutions submitted in a timed coding assessment. Respond with a JSON object " +
	"containing score (0-1), verdict, feedback and an optional details object. Point out the failing behaviour " +
	"without giving away a full solution."

func buildUserPrompt(input FeedbackInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Question\n")
	builder.WriteString(input.QuestionTitle)
	builder.WriteString("\n\n## Description\n")
	builder.WriteString(input.Description)
	if input.Constraints != "" {
		builder.WriteString("\n\n## Constraints\n")
		builder.WriteString(input.Constraints)
	}
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.Language)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.Code)
	builder.WriteString("\n\n## Test Results\n")
	builder.WriteString(strconv.Itoa(input.PassedTests))
	builder.WriteString(" of ")
	builder.WriteString(strconv.Itoa(input.TotalTests))
	builder.WriteString(" test cases passed.")
	for _, failed := range input.FailedCases {
		builder.WriteString("\n- ")
		builder.WriteString(failed)
	}
	if input.Notes != "" {
		builder.WriteString("\n\n## Notes\n")
		builder.WriteString(input.Notes)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseFeedback(content string) (FeedbackResult, error) {
	var result FeedbackResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return FeedbackResult{}, fmt.Errorf("parse feedback json: %w", err)
	}

	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 1 {
		result.Score = 1
	}
	return result, nil
}
