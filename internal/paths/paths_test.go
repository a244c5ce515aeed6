package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataDir(t *testing.T) {
	require.Equal(t, filepath.Clean("/srv/dockswap/"), DataDir("/srv/dockswap/"))

	if runtime.GOOS != "windows" {
		t.Setenv("XDG_DATA_HOME", "/xdg")
		require.Equal(t, filepath.Join("/xdg", "dockswap"), DataDir(""))
	}

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "data"), DataDir("~/data"))
}

func TestResolve(t *testing.T) {
	require.Equal(t, filepath.Join("/data", "dockswap.db"), Resolve("/data", "", "dockswap.db"))
	require.Equal(t, filepath.Join("/data", "custom.db"), Resolve("/data", "custom.db", "dockswap.db"))
	require.Equal(t, filepath.Clean("/elsewhere/x.db"), Resolve("/data", "/elsewhere/x.db", "dockswap.db"))
}
