package grading

import (
	"context"
	"strings"
	"time"
)

// Supported languages.
const (
	LanguageJava   = "java"
	LanguagePython = "python"
	LanguageSQL    = "sql"
)

// Run verdicts.
const (
	StatusAccepted     = "accepted"
	StatusWrongAnswer  = "wrong_answer"
	StatusNotAttempted = "not_attempted"
)

// TestCase is an input/expected-output pair attached to a question.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	IsHidden       bool   `json:"isHidden"`
	Marks          int    `json:"marks"`
}

// Result is the outcome of running a program against a single test case.
type Result struct {
	Input         string `json:"input"`
	Expected      string `json:"expected"`
	Actual        string `json:"actual"`
	Passed        bool   `json:"passed"`
	ExecutionTime int64  `json:"executionTime"`
	Error         string `json:"error,omitempty"`
	Hidden        bool   `json:"hidden,omitempty"`
	Marks         int    `json:"marks,omitempty"`
}

// Program is the student's source in a given language.
type Program struct {
	Language string
	Code     string
}

// Output is what a backend produced for one invocation. Error carries a
// compilation or runtime failure attributable to the program itself.
type Output struct {
	Stdout   string
	Error    string
	Duration time.Duration
}

// Backend executes a program once against the given stdin (or setup script for SQL).
// A returned error means the backend itself failed, not the program.
type Backend interface {
	Execute(ctx context.Context, program Program, input string) (Output, error)
}

// NormalizeLanguage lowercases and trims a language identifier.
func NormalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, program Program, input string) (Output, error)

// Execute implements Backend.
func (f BackendFunc) Execute(ctx context.Context, program Program, input string) (Output, error) {
	return f(ctx, program, input)
}
