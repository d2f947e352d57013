package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public execution API.
const DefaultEndpoint = "https://emkc.org/api/v2/piston/execute"

const maxErrorBody = 4096

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assess",
		Subsystem: "piston",
		Name:      "request_duration_seconds",
		Help:      "Duration of execution API requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assess",
		Subsystem: "piston",
		Name:      "request_failures_total",
		Help:      "Number of execution API requests that failed before a run result was returned",
	}, []string{"language"})
)

// File is a source file shipped with an execution request.
type File struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Request is the body of an execute call.
type Request struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Files    []File `json:"files"`
	Stdin    string `json:"stdin"`
}

// Stage reports a compile or run stage.
type Stage struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// ExitCode returns the stage exit code, treating a missing code as success.
func (s Stage) ExitCode() int {
	if s.Code == nil {
		return 0
	}
	return *s.Code
}

// Terminated returns the signal that ended the stage, or "" when it exited on its own.
func (s Stage) Terminated() string {
	if s.Signal == nil {
		return ""
	}
	return *s.Signal
}

// Response is the body returned by an execute call.
type Response struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Run      Stage  `json:"run"`
	Compile  *Stage `json:"compile,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Config groups client configuration values.
type Config struct {
	Endpoint      string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

// Client talks to the code-execution HTTP API.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// New constructs an execution API client.
func New(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		tracer:   otel.Tracer("github.com/noah-isme/gema-assessment-api/pkg/piston"),
		logger:   logger.With().Str("component", "piston_client").Logger(),
	}
}

// Execute submits the request and decodes the run result.
func (c *Client) Execute(parent context.Context, req Request) (Response, error) {
	ctx, span := c.tracer.Start(parent, "piston.execute", trace.WithAttributes(
		attribute.String("piston.language", req.Language),
		attribute.String("piston.version", req.Version),
	))
	defer span.End()

	fail := func(err error) (Response, error) {
		requestFailures.WithLabelValues(req.Language).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fail(fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	requestDuration.WithLabelValues(req.Language).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(fmt.Errorf("execute request: %w", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		message := extractMessage(snippet)
		c.logger.Warn().Int("status", httpResp.StatusCode).Str("language", req.Language).Msg("execution api rejected request")
		return fail(fmt.Errorf("execution api returned %d: %s", httpResp.StatusCode, message))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}

	if resp.Message != "" && resp.Run.Code == nil && resp.Run.Stdout == "" && resp.Run.Stderr == "" {
		return fail(errors.New(resp.Message))
	}

	return resp, nil
}

func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	return text
}
