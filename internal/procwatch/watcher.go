// Package procwatch tracks running title executables and captures their
// settings when they exit.
package procwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/monitor"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
	"github.com/zjrosen/dockswap/internal/tracing"
)

// Process is one running process. Start identifies the process instance
// together with PID, so a reused PID is seen as a new process; it may be
// empty when the platform does not report it.
type Process struct {
	PID   int
	Start string
	Path  string
}

type procKey struct {
	pid   int
	start string
}

func (p Process) key() procKey {
	return procKey{pid: p.PID, start: p.Start}
}

// ProcessSource lists running processes with their executable paths.
// Processes whose path cannot be resolved may be returned with an empty
// Path.
type ProcessSource interface {
	List(ctx context.Context) ([]Process, error)
}

// ExitPolicy picks the state key a title's settings are captured into when
// its process exits.
type ExitPolicy string

const (
	// ExitCaptureOpposite captures into the state opposite to the current
	// one.
	ExitCaptureOpposite ExitPolicy = "opposite"
	// ExitCaptureCurrent captures into the current state.
	ExitCaptureCurrent ExitPolicy = "current"
)

// ParseExitPolicy parses a policy name; empty means opposite.
func ParseExitPolicy(s string) (ExitPolicy, error) {
	switch ExitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExitCaptureOpposite:
		return ExitCaptureOpposite, nil
	case ExitCaptureCurrent:
		return ExitCaptureCurrent, nil
	default:
		return "", fmt.Errorf("unknown process exit capture policy %q", s)
	}
}

// TitleLister returns registered titles.
type TitleLister interface {
	List(q registry.ListQuery) []*domain.Title
}

// Config wires a Watcher.
type Config struct {
	Source   ProcessSource
	Titles   TitleLister
	Engine   *syncengine.Engine
	// Signal is read when a title exits, so the capture key follows the
	// environment even before the state monitor has applied a change.
	Signal   monitor.SignalSource
	States   monitor.States
	Policy   ExitPolicy
	Interval time.Duration
}

// Watcher correlates running processes with titles.
type Watcher struct {
	source   ProcessSource
	titles   TitleLister
	engine   *syncengine.Engine
	signal   monitor.SignalSource
	states   monitor.States
	policy   ExitPolicy
	interval time.Duration

	mu      sync.Mutex
	running map[procKey]*domain.Title
}

// New creates a Watcher.
func New(cfg Config) *Watcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	policy := cfg.Policy
	if policy == "" {
		policy = ExitCaptureOpposite
	}
	return &Watcher{
		source:   cfg.Source,
		titles:   cfg.Titles,
		engine:   cfg.Engine,
		signal:   cfg.Signal,
		states:   cfg.States,
		policy:   policy,
		interval: interval,
		running:  make(map[procKey]*domain.Title),
	}
}

// Tracked returns the PIDs currently tracked, keyed to their title IDs.
func (w *Watcher) Tracked() map[int]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int]string, len(w.running))
	for k, t := range w.running {
		out[k.pid] = t.ID
	}
	return out
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log.Info(log.CatProcess, "Process watcher started", "interval", w.interval, "policy", w.policy)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			log.Info(log.CatProcess, "Process watcher stopped")
			return nil
		}
		if err := w.Poll(ctx); err != nil {
			log.WarnErr(log.CatProcess, "Listing processes failed", err)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Poll lists processes once: newly seen title executables are tracked, and
// tracked PIDs that disappeared get their settings captured.
func (w *Watcher) Poll(ctx context.Context) error {
	procs, err := w.source.List(ctx)
	if err != nil {
		return err
	}

	byExe := w.executables()
	alive := make(map[procKey]struct{}, len(procs))

	w.mu.Lock()
	for _, p := range procs {
		alive[p.key()] = struct{}{}
		if p.Path == "" {
			continue
		}
		t, ok := byExe[normalize(p.Path)]
		if !ok {
			continue
		}
		if _, tracked := w.running[p.key()]; !tracked {
			w.running[p.key()] = t
			log.Info(log.CatProcess, "Title started", "title", t.Name, "pid", p.PID)
		}
	}
	var exited []exit
	for k, t := range w.running {
		if _, ok := alive[k]; !ok {
			exited = append(exited, exit{pid: k.pid, title: t})
			delete(w.running, k)
		}
	}
	w.mu.Unlock()

	for _, e := range exited {
		w.onExit(ctx, e)
	}
	return nil
}

type exit struct {
	pid   int
	title *domain.Title
}

func (w *Watcher) onExit(ctx context.Context, e exit) {
	active, err := w.liveState(ctx)
	if err != nil {
		log.WarnErr(log.CatProcess, "Reading signal failed, not capturing", err, "title", e.title.Name, "pid", e.pid)
		return
	}
	if active.IsZero() {
		log.Warn(log.CatProcess, "Title exited before the state was known, not capturing", "title", e.title.Name, "pid", e.pid)
		return
	}
	key := active
	if w.policy == ExitCaptureOpposite {
		key = w.states.Opposite(active)
	}
	if key.IsZero() {
		log.Warn(log.CatProcess, "No capture state for exited title", "title", e.title.Name, "active", active)
		return
	}

	ctx, span := w.engine.Tracer().Start(ctx, tracing.SpanProcessExit, trace.WithAttributes(
		attribute.Int(tracing.AttrProcessID, e.pid),
		attribute.String(tracing.AttrCaptureKey, string(key)),
	))
	defer span.End()

	log.Info(log.CatProcess, "Title exited, capturing settings", "title", e.title.Name, "pid", e.pid, "key", key)
	if _, err := w.engine.SyncTitle(ctx, e.title, syncengine.CaptureOnly(key, active)); err != nil {
		tracing.RecordError(span, err)
		log.ErrorErr(log.CatProcess, "Capture after exit failed", err, "title", e.title.Name)
	}
}

// liveState reads the environment signal now. It returns "" while the
// signal is unknown.
func (w *Watcher) liveState(ctx context.Context) (domain.StateKey, error) {
	if w.signal == nil {
		return "", nil
	}
	on, known, err := w.signal.Current(ctx)
	if err != nil || !known {
		return "", err
	}
	return w.states.Key(on), nil
}

// executables maps normalized executable paths of syncable titles.
func (w *Watcher) executables() map[string]*domain.Title {
	titles := w.titles.List(registry.ListQuery{SyncableOnly: true})
	out := make(map[string]*domain.Title, len(titles))
	for _, t := range titles {
		exe := t.ExecutablePath()
		if exe == "" {
			continue
		}
		out[normalize(exe)] = t
	}
	return out
}

func normalize(path string) string {
	return strings.ToLower(filepath.Clean(filepath.FromSlash(path)))
}
