package grading

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	dockerexec "github.com/noah-isme/gema-assessment-api/pkg/docker"
)

const stdinFileName = "input.txt"

// ContainerImage describes how a language runs inside the sandbox.
type ContainerImage struct {
	Image    string
	FileName string
	Command  string
}

// DefaultContainerImages returns the sandbox images for Java and Python.
func DefaultContainerImages() map[string]ContainerImage {
	return map[string]ContainerImage{
		LanguageJava: {
			Image:    "eclipse-temurin:17-jdk-alpine",
			FileName: "Main.java",
			Command:  "java Main.java < " + stdinFileName,
		},
		LanguagePython: {
			Image:    "python:3.11-alpine",
			FileName: "main.py",
			Command:  "python main.py < " + stdinFileName,
		},
	}
}

// ContainerConfig holds sandbox resource limits.
type ContainerConfig struct {
	Timeout       time.Duration
	MemoryLimitMB int
	CPUShares     int
	WorkspaceRoot string
}

// ContainerBackend runs Java and Python inside a self-hosted container sandbox.
type ContainerBackend struct {
	executor dockerexec.Executor
	images   map[string]ContainerImage
	cfg      ContainerConfig
}

// NewContainerBackend constructs the backend. A nil images map uses DefaultContainerImages.
func NewContainerBackend(executor dockerexec.Executor, images map[string]ContainerImage, cfg ContainerConfig) *ContainerBackend {
	if images == nil {
		images = DefaultContainerImages()
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	return &ContainerBackend{executor: executor, images: images, cfg: cfg}
}

// Execute implements Backend.
func (b *ContainerBackend) Execute(ctx context.Context, program Program, input string) (Output, error) {
	language := NormalizeLanguage(program.Language)
	image, ok := b.images[language]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, program.Language)
	}

	workspace, err := os.MkdirTemp(b.cfg.WorkspaceRoot, "run-")
	if err != nil {
		return Output{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, image.FileName), []byte(program.Code), 0o644); err != nil {
		return Output{}, fmt.Errorf("write source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, stdinFileName), []byte(input), 0o644); err != nil {
		return Output{}, fmt.Errorf("write stdin: %w", err)
	}

	result, runErr := b.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image:           image.Image,
		Cmd:             []string{"sh", "-c", image.Command},
		Timeout:         b.cfg.Timeout,
		Workspace:       workspace,
		MemoryLimitMB:   int64(b.cfg.MemoryLimitMB),
		CPUShares:       int64(b.cfg.CPUShares),
		NetworkDisabled: true,
	})

	if result.TimedOut {
		return Output{Stdout: result.Stdout, Error: "Time Limit Exceeded", Duration: result.Duration}, nil
	}
	if runErr != nil {
		return Output{Duration: result.Duration}, runErr
	}

	if result.ExitCode != 0 {
		stderr := firstNonEmpty(result.Stderr, fmt.Sprintf("exit code %d", result.ExitCode))
		prefix := "Runtime Error: "
		if language == LanguageJava && strings.Contains(stderr, image.FileName+":") && strings.Contains(stderr, "error:") {
			prefix = "Compilation Error: "
		}
		return Output{Stdout: result.Stdout, Error: prefix + stderr, Duration: result.Duration}, nil
	}

	return Output{Stdout: result.Stdout, Duration: result.Duration}, nil
}
