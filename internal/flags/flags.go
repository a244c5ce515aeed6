// Package flags provides feature flags for optional daemon behavior.
// Flags are read-only after initialization and unknown flags are off.
package flags

import (
	"maps"
	"sort"

	"github.com/zjrosen/dockswap/internal/log"
)

const (
	// FlagProcessWatcher runs the process watcher loop, capturing a
	// title's settings when its executable exits.
	FlagProcessWatcher = "process-watcher"

	// FlagDriftWatch watches live settings files and announces edits made
	// outside of a sync.
	FlagDriftWatch = "drift-watch"

	// FlagSeedOnAdd captures a newly added title's settings into both
	// state slots.
	FlagSeedOnAdd = "seed-on-add"
)

// Defaults returns the built-in flag values.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagProcessWatcher: true,
		FlagDriftWatch:     false,
		FlagSeedOnAdd:      true,
	}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from Defaults overlaid with configured values.
func New(configured map[string]bool) *Registry {
	flags := Defaults()
	maps.Copy(flags, configured)
	r := &Registry{flags: flags}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(flags), "enabled", r.EnabledNames())
	return r
}

// Enabled reports whether the named flag is on. Unknown flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil || r.flags == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil || r.flags == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}

// EnabledNames returns the sorted names of enabled flags.
func (r *Registry) EnabledNames() []string {
	var out []string
	for name, on := range r.All() {
		if on {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
