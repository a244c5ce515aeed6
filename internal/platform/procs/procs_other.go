//go:build !linux && !windows

package procs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// snapshot shells out to ps, which already reports the full command path
// and start time.
func snapshot(ctx context.Context) ([]rawProc, error) {
	out, err := exec.CommandContext(ctx, "ps", "-axo", "pid=,lstart=,comm=").Output()
	if err != nil {
		return nil, fmt.Errorf("running ps: %w", err)
	}
	return parsePS(out), nil
}

// parsePS reads "pid weekday month day time year command" lines.
func parsePS(out []byte) []rawProc {
	var procs []rawProc
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 7 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, rawProc{
			pid:   pid,
			start: strings.Join(fields[1:6], " "),
			path:  strings.Join(fields[6:], " "),
		})
	}
	return procs
}

func resolvePath(context.Context, int) (string, error) {
	return "", errors.New("path resolution is done by ps")
}
