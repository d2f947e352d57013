package grading

import (
	"context"
	"time"
)

// SQLRunner evaluates a query against a database prepared by a setup script.
type SQLRunner interface {
	Run(ctx context.Context, setup, query string) (string, error)
}

// SQLBackend grades SQL submissions with the embedded engine. The test-case input is
// the setup script and the produced stdout is the JSON-encoded result set.
type SQLBackend struct {
	runner SQLRunner
}

// NewSQLBackend constructs the backend.
func NewSQLBackend(runner SQLRunner) *SQLBackend {
	return &SQLBackend{runner: runner}
}

// Execute implements Backend. Engine errors are query errors, so they are reported on
// the Output instead of as backend failures.
func (b *SQLBackend) Execute(ctx context.Context, program Program, input string) (Output, error) {
	started := time.Now()
	out, err := b.runner.Run(ctx, input, program.Code)
	elapsed := time.Since(started)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{Duration: elapsed}, ctxErr
		}
		return Output{Error: "SQL Error: " + err.Error(), Duration: elapsed}, nil
	}
	return Output{Stdout: out, Duration: elapsed}, nil
}
