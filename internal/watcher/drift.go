package watcher

import (
	"context"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
)

// TitleLister returns registered titles.
type TitleLister interface {
	List(q registry.ListQuery) []*domain.Title
}

// DriftFunc is called for every live file that no longer matches the
// snapshot of the title's current state.
type DriftFunc func(t *domain.Title, entry *domain.SettingsEntry, path string)

type target struct {
	title *domain.Title
	entry *domain.SettingsEntry
}

// DriftWatcher watches the live files of every syncable title and reports
// drift from their stored snapshots.
type DriftWatcher struct {
	w       *Watcher
	engine  *syncengine.Engine
	titles  TitleLister
	onDrift DriftFunc
	targets map[string]target
}

// NewDriftWatcher creates a DriftWatcher.
func NewDriftWatcher(cfg Config, engine *syncengine.Engine, titles TitleLister, onDrift DriftFunc) (*DriftWatcher, error) {
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &DriftWatcher{w: w, engine: engine, titles: titles, onDrift: onDrift}, nil
}

// Run watches until ctx is cancelled.
func (d *DriftWatcher) Run(ctx context.Context) error {
	d.refresh()
	changes := d.w.Start()
	defer func() { _ = d.w.Stop() }()
	log.Info(log.CatWatcher, "Drift watcher started", "files", len(d.targets))

	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatWatcher, "Drift watcher stopped")
			return nil
		case batch := <-changes:
			d.Check(ctx, batch)
			d.refresh()
		}
	}
}

// Check compares each changed path with its stored snapshot.
func (d *DriftWatcher) Check(ctx context.Context, paths []string) int {
	drifted := 0
	for _, p := range paths {
		tg, ok := d.targets[p]
		if !ok {
			continue
		}
		changed, err := d.engine.Drifted(ctx, tg.title, tg.entry)
		if err != nil {
			log.Debug(log.CatWatcher, "Drift check failed", "title", tg.title.Name, "path", p, "error", err)
			continue
		}
		if changed {
			drifted++
			log.Info(log.CatWatcher, "Live settings drifted", "title", tg.title.Name, "path", p)
			if d.onDrift != nil {
				d.onDrift(tg.title, tg.entry, p)
			}
		}
	}
	return drifted
}

func (d *DriftWatcher) refresh() {
	targets := make(map[string]target)
	for _, t := range d.titles.List(registry.ListQuery{SyncableOnly: true}) {
		release := t.BeginSync()
		for _, e := range t.EnabledSettings() {
			if e.Kind != domain.KindFile {
				continue
			}
			if p := d.engine.ResolvePath(t, e); p != "" {
				targets[p] = target{title: t, entry: e}
			}
		}
		release()
	}
	paths := make([]string, 0, len(targets))
	for p := range targets {
		paths = append(paths, p)
	}
	d.w.SetFiles(paths)
	d.targets = targets
}
