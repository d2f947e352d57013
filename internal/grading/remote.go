package grading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/gema-assessment-api/pkg/piston"
)

// RemoteExecutor is the subset of the execution API client used by RemoteBackend.
type RemoteExecutor interface {
	Execute(ctx context.Context, req piston.Request) (piston.Response, error)
}

// Runtime pins the language version and entry file name sent to the execution API.
type Runtime struct {
	Language string
	Version  string
	FileName string
}

// DefaultRuntimes returns the runtimes used when none are configured.
func DefaultRuntimes() map[string]Runtime {
	return map[string]Runtime{
		LanguageJava:   {Language: "java", Version: "15.0.2", FileName: "Main.java"},
		LanguagePython: {Language: "python", Version: "3.10.0", FileName: "main.py"},
	}
}

// RemoteBackend runs Java and Python through the external execution API, one request
// per test case with the test input as stdin.
type RemoteBackend struct {
	client   RemoteExecutor
	runtimes map[string]Runtime
}

// NewRemoteBackend constructs the backend. A nil runtimes map uses DefaultRuntimes.
func NewRemoteBackend(client RemoteExecutor, runtimes map[string]Runtime) *RemoteBackend {
	if runtimes == nil {
		runtimes = DefaultRuntimes()
	}
	return &RemoteBackend{client: client, runtimes: runtimes}
}

// Execute implements Backend.
func (b *RemoteBackend) Execute(ctx context.Context, program Program, input string) (Output, error) {
	runtime, ok := b.runtimes[NormalizeLanguage(program.Language)]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, program.Language)
	}

	started := time.Now()
	resp, err := b.client.Execute(ctx, piston.Request{
		Language: runtime.Language,
		Version:  runtime.Version,
		Files:    []piston.File{{Name: runtime.FileName, Content: program.Code}},
		Stdin:    input,
	})
	elapsed := time.Since(started)
	if err != nil {
		return Output{Duration: elapsed}, err
	}

	if compile := resp.Compile; compile != nil && (compile.ExitCode() != 0 || compile.Terminated() != "" || strings.TrimSpace(compile.Stderr) != "") {
		return Output{
			Error:    "Compilation Error: " + firstNonEmpty(compile.Stderr, compile.Output, compile.Terminated(), fmt.Sprintf("exit code %d", compile.ExitCode())),
			Duration: elapsed,
		}, nil
	}

	// The sandbox kills runs that exceed their limit; the stage then carries a
	// signal and no exit code.
	switch signal := resp.Run.Terminated(); signal {
	case "":
	case "SIGKILL":
		return Output{Stdout: resp.Run.Stdout, Error: "Time Limit Exceeded", Duration: elapsed}, nil
	default:
		return Output{
			Stdout:   resp.Run.Stdout,
			Error:    "Runtime Error: " + firstNonEmpty(resp.Run.Stderr, signal),
			Duration: elapsed,
		}, nil
	}

	if code := resp.Run.ExitCode(); code != 0 {
		return Output{
			Stdout:   resp.Run.Stdout,
			Error:    "Runtime Error: " + firstNonEmpty(resp.Run.Stderr, fmt.Sprintf("exit code %d", code)),
			Duration: elapsed,
		}, nil
	}

	return Output{Stdout: resp.Run.Stdout, Duration: elapsed}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
