// Package paths resolves where dockswap keeps its data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "dockswap"

// DataDir returns dir when set, otherwise the per-user data directory:
// $XDG_DATA_HOME/dockswap, ~/.local/share/dockswap, or %LOCALAPPDATA%
// on Windows.
func DataDir(dir string) string {
	if dir != "" {
		return filepath.Clean(ExpandHome(dir))
	}
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appDir)
		}
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", appDir)
	}
	return filepath.Join(".", "."+appDir)
}

// Resolve returns path when absolute, otherwise path joined onto dataDir.
// An empty path yields def inside dataDir.
func Resolve(dataDir, path, def string) string {
	if path == "" {
		path = def
	}
	path = ExpandHome(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dataDir, path)
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[0] != '~' || (path[1] != '/' && path[1] != '\\') {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
