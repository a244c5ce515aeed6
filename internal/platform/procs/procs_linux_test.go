//go:build linux

package procs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLister_FindsSelf(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	l := NewLister()
	procs, err := l.List(context.Background())
	require.NoError(t, err)

	found := false
	for _, p := range procs {
		if p.PID == os.Getpid() {
			found = true
			require.Equal(t, exe, p.Path)
			require.NotEmpty(t, p.Start, "start time tells reused PIDs apart")
		}
	}
	require.True(t, found, "the test process lists itself")

	// second listing is served from the path cache
	again, err := l.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, again)
}

func TestStartTime(t *testing.T) {
	start, err := startTime(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, start)

	_, err = startTime(-1)
	require.Error(t, err)
}
