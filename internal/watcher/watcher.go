// Package watcher provides debounced file system watching of live settings
// artifacts.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/dockswap/internal/log"
)

// Watcher monitors a set of files and reports which of them changed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	onChange  chan []string
	done      chan struct{}
	stopOnce  sync.Once

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// Config holds watcher configuration options.
type Config struct {
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig() Config {
	return Config{DebounceDur: 1 * time.Second}
}

// New creates a new watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
		files:     make(map[string]struct{}),
		dirs:      make(map[string]struct{}),
	}, nil
}

// SetFiles replaces the watched file set. Parent directories are watched
// so that atomic replacements are seen; directories that no longer hold a
// watched file are dropped.
func (w *Watcher) SetFiles(paths []string) {
	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		p = filepath.Clean(p)
		files[p] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.dirs {
		if _, keep := dirs[dir]; !keep {
			_ = w.fsWatcher.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	for dir := range dirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			log.WarnErr(log.CatWatcher, "Watching directory failed", err, "dir", dir)
			continue
		}
		w.dirs[dir] = struct{}{}
	}
	w.files = files
}

// Start begins processing events. The returned channel receives the sorted
// set of changed files after each quiet period.
func (w *Watcher) Start() <-chan []string {
	go w.loop()
	return w.onChange
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending = make(map[string]struct{})
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			path, relevant := w.relevant(event)
			if !relevant {
				continue
			}
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			select {
			case w.onChange <- batch:
				pending = make(map[string]struct{})
			default:
				// receiver busy; keep the batch for the next quiet period
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.WarnErr(log.CatWatcher, "File watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevant reports whether the event touches a watched file.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return "", false
	}
	path := filepath.Clean(event.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[path]
	return path, ok
}
