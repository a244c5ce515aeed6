// Package devices counts display adapters for the dock signal.
package devices

import (
	"context"

	"github.com/zjrosen/dockswap/internal/monitor"
)

// Counter implements monitor.DeviceSource for the current platform.
type Counter struct {
	// Root overrides the sysfs root on Linux; used by tests.
	Root string
}

var _ monitor.DeviceSource = Counter{}

// Count returns the number of display adapters present.
func (c Counter) Count(ctx context.Context) (int, error) {
	return count(ctx, c.Root)
}
