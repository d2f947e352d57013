package docker

import (
	"bytes"
	"testing"

	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
)

func TestBuildHostConfigUsesDefaults(t *testing.T) {
	cfg := Config{MemoryLimitMB: 256, CPUShares: 512, WorkingDir: "/sandbox"}

	hostCfg := buildHostConfig(ExecutionRequest{Workspace: "/tmp/run-1", NetworkDisabled: true}, cfg)
	require.Equal(t, int64(256*1024*1024), hostCfg.Resources.Memory)
	require.Equal(t, int64(512), hostCfg.Resources.CPUShares)
	require.Equal(t, "none", string(hostCfg.NetworkMode))
	require.Len(t, hostCfg.Mounts, 1)
	require.Equal(t, mount.TypeBind, hostCfg.Mounts[0].Type)
	require.Equal(t, "/tmp/run-1", hostCfg.Mounts[0].Source)
	require.Equal(t, "/sandbox", hostCfg.Mounts[0].Target)
}

func TestBuildHostConfigRequestOverrides(t *testing.T) {
	hostCfg := buildHostConfig(ExecutionRequest{MemoryLimitMB: 64, CPUShares: 128, ReadOnlyFS: true}, Config{MemoryLimitMB: 256})
	require.Equal(t, int64(64*1024*1024), hostCfg.Resources.Memory)
	require.Equal(t, int64(128), hostCfg.Resources.CPUShares)
	require.Equal(t, "bridge", string(hostCfg.NetworkMode))
	require.True(t, hostCfg.ReadonlyRootfs)
	require.Empty(t, hostCfg.Mounts)
}

func TestSplitDockerLogs(t *testing.T) {
	var stream bytes.Buffer
	_, err := stdcopy.NewStdWriter(&stream, stdcopy.Stdout).Write([]byte("Hello World\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&stream, stdcopy.Stderr).Write([]byte("warning\n"))
	require.NoError(t, err)

	stdout, stderr, err := splitDockerLogs(&stream)
	require.NoError(t, err)
	require.Equal(t, "Hello World\n", stdout)
	require.Equal(t, "warning\n", stderr)
}
