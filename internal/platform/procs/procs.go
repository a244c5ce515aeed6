// Package procs lists running processes with their executable paths.
package procs

import (
	"context"
	"strconv"
	"time"

	"github.com/zjrosen/dockswap/internal/cachemanager"
	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/procwatch"
)

// pathTTL bounds how long a resolved executable path is trusted. Keys
// include the process start time, so PID reuse never hits a stale entry.
const pathTTL = 10 * time.Minute

// rawProc is one process as enumerated by the platform. Path is set when
// enumeration already yields it.
type rawProc struct {
	pid   int
	start string
	path  string
}

func (p rawProc) key() string {
	return strconv.Itoa(p.pid) + ":" + p.start
}

// Lister implements procwatch.ProcessSource for the current platform.
type Lister struct {
	paths *cachemanager.ReadThroughCache[string, int]
	seen  map[string]struct{}
}

var _ procwatch.ProcessSource = (*Lister)(nil)

// NewLister creates a Lister with an executable path cache.
func NewLister() *Lister {
	cache := cachemanager.NewInMemoryCacheManager[string]("process-paths", pathTTL, 2*pathTTL)
	return &Lister{
		paths: cachemanager.NewReadThroughCache[string, int](cache, resolvePath, pathTTL),
		seen:  make(map[string]struct{}),
	}
}

// List enumerates processes. Processes whose path cannot be resolved are
// returned with an empty Path.
func (l *Lister) List(ctx context.Context) ([]procwatch.Process, error) {
	raw, err := snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]procwatch.Process, 0, len(raw))
	current := make(map[string]struct{}, len(raw))
	for _, p := range raw {
		path := p.path
		if path == "" {
			key := p.key()
			current[key] = struct{}{}
			path, err = l.paths.Get(ctx, key, p.pid)
			if err != nil {
				log.Debug(log.CatProcess, "Resolving process path failed", "pid", p.pid, "error", err)
				path = ""
			}
		}
		out = append(out, procwatch.Process{PID: p.pid, Start: p.start, Path: path})
	}

	var gone []string
	for key := range l.seen {
		if _, ok := current[key]; !ok {
			gone = append(gone, key)
		}
	}
	l.paths.Forget(ctx, gone)
	l.seen = current
	return out, nil
}
