package grading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dockerexec "github.com/noah-isme/gema-assessment-api/pkg/docker"
)

type stubExecutor struct {
	result   dockerexec.ExecutionResult
	err      error
	source   string
	stdin    string
	requests []dockerexec.ExecutionRequest
}

func (s *stubExecutor) Run(ctx context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
	s.requests = append(s.requests, req)
	entries, _ := os.ReadDir(req.Workspace)
	for _, entry := range entries {
		data, _ := os.ReadFile(filepath.Join(req.Workspace, entry.Name()))
		if entry.Name() == stdinFileName {
			s.stdin = string(data)
		} else {
			s.source = string(data)
		}
	}
	return s.result, s.err
}

func TestContainerBackendWritesWorkspace(t *testing.T) {
	executor := &stubExecutor{result: dockerexec.ExecutionResult{Stdout: "3\n"}}
	backend := NewContainerBackend(executor, nil, ContainerConfig{Timeout: time.Second, MemoryLimitMB: 128, WorkspaceRoot: t.TempDir()})

	out, err := backend.Execute(context.Background(), Program{Language: LanguagePython, Code: "print(int(input())+1)"}, "2")
	require.NoError(t, err)
	require.Equal(t, "3\n", out.Stdout)
	require.Empty(t, out.Error)

	require.Equal(t, "print(int(input())+1)", executor.source)
	require.Equal(t, "2", executor.stdin)
	req := executor.requests[0]
	require.Equal(t, "python:3.11-alpine", req.Image)
	require.True(t, req.NetworkDisabled)
	require.Equal(t, int64(128), req.MemoryLimitMB)

	_, statErr := os.Stat(req.Workspace)
	require.True(t, os.IsNotExist(statErr))
}

func TestContainerBackendVerdicts(t *testing.T) {
	timedOut := &stubExecutor{result: dockerexec.ExecutionResult{TimedOut: true}, err: errors.New("execution timed out")}
	out, err := NewContainerBackend(timedOut, nil, ContainerConfig{WorkspaceRoot: t.TempDir()}).
		Execute(context.Background(), Program{Language: LanguageJava}, "")
	require.NoError(t, err)
	require.Equal(t, "Time Limit Exceeded", out.Error)

	compile := &stubExecutor{result: dockerexec.ExecutionResult{ExitCode: 1, Stderr: "Main.java:4: error: cannot find symbol"}}
	out, err = NewContainerBackend(compile, nil, ContainerConfig{WorkspaceRoot: t.TempDir()}).
		Execute(context.Background(), Program{Language: LanguageJava}, "")
	require.NoError(t, err)
	require.Contains(t, out.Error, "Compilation Error")

	runtime := &stubExecutor{result: dockerexec.ExecutionResult{ExitCode: 1, Stderr: "Traceback"}}
	out, err = NewContainerBackend(runtime, nil, ContainerConfig{WorkspaceRoot: t.TempDir()}).
		Execute(context.Background(), Program{Language: LanguagePython}, "")
	require.NoError(t, err)
	require.Equal(t, "Runtime Error: Traceback", out.Error)

	daemon := &stubExecutor{err: errors.New("container create: no such image")}
	_, err = NewContainerBackend(daemon, nil, ContainerConfig{WorkspaceRoot: t.TempDir()}).
		Execute(context.Background(), Program{Language: LanguagePython}, "")
	require.Error(t, err)
}
