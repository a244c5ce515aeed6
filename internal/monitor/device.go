package monitor

import (
	"context"
	"time"

	"github.com/zjrosen/dockswap/internal/log"
)

// DeviceSource counts the display adapters currently present.
type DeviceSource interface {
	Count(ctx context.Context) (int, error)
}

// DeviceMonitor publishes the dock signal: the machine counts as docked
// whenever the number of display adapters differs from the internal count.
type DeviceMonitor struct {
	source   DeviceSource
	signal   *Signal
	internal int
	interval time.Duration
	last     int
}

// NewDeviceMonitor creates a DeviceMonitor writing into signal.
func NewDeviceMonitor(source DeviceSource, signal *Signal, internal int, interval time.Duration) *DeviceMonitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if internal <= 0 {
		internal = 1
	}
	return &DeviceMonitor{source: source, signal: signal, internal: internal, interval: interval, last: -1}
}

// Poll counts adapters once and updates the signal. A failed count leaves
// the signal untouched.
func (d *DeviceMonitor) Poll(ctx context.Context) error {
	n, err := d.source.Count(ctx)
	if err != nil {
		return err
	}
	if n != d.last {
		log.Debug(log.CatMonitor, "Display adapters changed", "count", n, "internal", d.internal)
		d.last = n
	}
	d.signal.Set(n != d.internal)
	return nil
}

// Run polls until ctx is cancelled.
func (d *DeviceMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := d.Poll(ctx); err != nil {
			log.WarnErr(log.CatMonitor, "Counting display adapters failed", err)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}
