//go:build linux

package procs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const procRoot = "/proc"

func snapshot(context.Context) ([]rawProc, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", procRoot, err)
	}
	out := make([]rawProc, 0, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		start, err := startTime(pid)
		if err != nil {
			// exited between ReadDir and here
			continue
		}
		out = append(out, rawProc{pid: pid, start: start})
	}
	return out, nil
}

// startTime returns field 22 of /proc/<pid>/stat. The command name in
// field 2 may contain spaces, so fields are counted after its closing
// parenthesis.
func startTime(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return "", err
	}
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 {
		return "", fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(s[i+1:])
	// fields[0] is field 3 (state)
	if len(fields) < 20 {
		return "", fmt.Errorf("short stat for pid %d", pid)
	}
	return fields[19], nil
}

func resolvePath(_ context.Context, pid int) (string, error) {
	path, err := os.Readlink(filepath.Join(procRoot, strconv.Itoa(pid), "exe"))
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(path, " (deleted)"), nil
}
