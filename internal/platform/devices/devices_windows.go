//go:build windows

package devices

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func count(ctx context.Context, _ string) (int, error) {
	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"(Get-CimInstance -ClassName Win32_VideoController | Measure-Object).Count").Output()
	if err != nil {
		return 0, fmt.Errorf("querying video controllers: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parsing video controller count %q: %w", strings.TrimSpace(string(out)), err)
	}
	return n, nil
}
