// Package daemon runs dockswap's background loops until shut down.
//
// The daemon:
//  1. Polls the environment signal and swaps titles on transitions
//  2. Reloads titles when another process changes the database
//  3. Publishes the display adapter count as that signal (gpu source)
//  4. Captures a title's settings when its process exits (process-watcher flag)
//  5. Announces settings edited outside of a sync (drift-watch flag)
//  6. Prints notifications to the terminal
//
// Each loop runs in its own goroutine; they share only the title registry,
// whose titles serialize syncs through their own locks.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/zjrosen/dockswap/internal/app"
	"github.com/zjrosen/dockswap/internal/config"
	"github.com/zjrosen/dockswap/internal/flags"
	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/monitor"
	"github.com/zjrosen/dockswap/internal/notify"
	"github.com/zjrosen/dockswap/internal/platform/devices"
	"github.com/zjrosen/dockswap/internal/platform/procs"
	"github.com/zjrosen/dockswap/internal/procwatch"
	"github.com/zjrosen/dockswap/internal/pubsub"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/watcher"
)

// Options overrides the platform sources the daemon would otherwise use.
type Options struct {
	// Signal replaces the configured signal source.
	Signal monitor.SignalSource
	// Devices replaces the display adapter counter of the gpu source.
	Devices monitor.DeviceSource
	// Processes replaces the platform process lister.
	Processes procwatch.ProcessSource
	// Out receives printed notifications; nil means stdout.
	Out io.Writer
}

type loop struct {
	name string
	run  func(ctx context.Context) error
}

// Daemon owns the background loops.
type Daemon struct {
	svc     *app.Services
	monitor *monitor.StateMonitor
	loops   []loop
	notes   <-chan pubsub.Event[notify.Message]

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New wires the loops enabled by the services' configuration and flags.
func New(svc *app.Services, opts Options) (*Daemon, error) {
	cfg := svc.Config
	d := &Daemon{svc: svc}

	source := opts.Signal
	if source == nil {
		var err error
		source, err = d.signalSource(cfg.Signal, opts.Devices)
		if err != nil {
			return nil, err
		}
	}

	d.monitor = monitor.New(monitor.Config{
		Source:       source,
		States:       svc.States,
		Titles:       svc.Titles,
		Engine:       svc.Engine,
		Reconciler:   svc.Reconciler(),
		Interval:     cfg.PollInterval,
		OnTransition: svc.Bus.StateChanged,
	})
	d.add("state-monitor", d.monitor.Run)

	reload, err := watcher.New(watcher.Config{DebounceDur: cfg.PollInterval})
	if err != nil {
		return nil, fmt.Errorf("creating database watcher: %w", err)
	}
	d.add("title-reload", func(ctx context.Context) error {
		return d.reloadTitles(ctx, reload)
	})

	if svc.Flags.Enabled(flags.FlagProcessWatcher) {
		policy, err := procwatch.ParseExitPolicy(cfg.ProcessExitCapture)
		if err != nil {
			return nil, err
		}
		processes := opts.Processes
		if processes == nil {
			processes = procs.NewLister()
		}
		pw := procwatch.New(procwatch.Config{
			Source:   processes,
			Titles:   svc.Titles,
			Engine:   svc.Engine,
			Signal:   source,
			States:   svc.States,
			Policy:   policy,
			Interval: cfg.PollInterval,
		})
		d.add("process-watcher", pw.Run)
	}

	if svc.Flags.Enabled(flags.FlagDriftWatch) {
		dw, err := watcher.NewDriftWatcher(watcher.Config{DebounceDur: cfg.DriftDebounce}, svc.Engine, svc.Titles,
			func(t *domain.Title, _ *domain.SettingsEntry, path string) { svc.Bus.Drift(t.Name, path) })
		if err != nil {
			return nil, fmt.Errorf("creating drift watcher: %w", err)
		}
		d.add("drift-watcher", dw.Run)
	}

	if cfg.Notifications {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		printer := notify.NewPrinter(out)
		d.add("notifications", func(ctx context.Context) error {
			printer.Run(ctx, d.notes)
			return nil
		})
	}

	return d, nil
}

// reloadTitles refreshes the registry whenever the database files change,
// so titles added, edited or removed by the CLI reach the running loops.
func (d *Daemon) reloadTitles(ctx context.Context, w *watcher.Watcher) error {
	db := d.svc.DB.Path()
	w.SetFiles([]string{db, db + "-wal"})
	changes := w.Start()
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if _, _, err := d.svc.Titles.Reload(); err != nil {
				log.WarnErr(log.CatRegistry, "Reloading titles failed", err)
			}
		}
	}
}

// signalSource builds the configured source. The gpu source also gets a
// device monitor loop publishing into the shared signal.
func (d *Daemon) signalSource(cfg config.SignalConfig, counter monitor.DeviceSource) (monitor.SignalSource, error) {
	switch cfg.Source {
	case config.SignalSourceFile:
		return monitor.FileSignalSource{Path: cfg.FilePath, States: d.svc.States}, nil
	case "", config.SignalSourceGPU:
		if counter == nil {
			counter = devices.Counter{}
		}
		signal := &monitor.Signal{}
		dm := monitor.NewDeviceMonitor(counter, signal, cfg.InternalControllers, d.svc.Config.PollInterval)
		d.add("device-monitor", dm.Run)
		return signal, nil
	default:
		return nil, fmt.Errorf("unknown signal source %q", cfg.Source)
	}
}

// Probe reads the environment signal once and returns the matching state,
// or "" when the signal is unknown.
func Probe(ctx context.Context, svc *app.Services, opts Options) (domain.StateKey, error) {
	source := opts.Signal
	if source == nil {
		cfg := svc.Config.Signal
		switch cfg.Source {
		case config.SignalSourceFile:
			source = monitor.FileSignalSource{Path: cfg.FilePath, States: svc.States}
		case "", config.SignalSourceGPU:
			counter := opts.Devices
			if counter == nil {
				counter = devices.Counter{}
			}
			signal := &monitor.Signal{}
			if err := monitor.NewDeviceMonitor(counter, signal, cfg.InternalControllers, 0).Poll(ctx); err != nil {
				return "", err
			}
			source = signal
		default:
			return "", fmt.Errorf("unknown signal source %q", cfg.Source)
		}
	}
	on, known, err := source.Current(ctx)
	if err != nil || !known {
		return "", err
	}
	return svc.States.Key(on), nil
}

func (d *Daemon) add(name string, run func(ctx context.Context) error) {
	d.loops = append(d.loops, loop{name: name, run: run})
}

// Loops returns the names of the wired loops in start order.
func (d *Daemon) Loops() []string {
	names := make([]string, len(d.loops))
	for i, l := range d.loops {
		names[i] = l.name
	}
	return names
}

// State returns the environment state last observed, or "" before the
// first observation.
func (d *Daemon) State() domain.StateKey {
	return d.monitor.Current()
}

// Start launches every loop and blocks until ctx is cancelled or Stop is
// called. It then waits for the loops to return.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	// Subscribe before any loop can publish so the first transition is
	// printed.
	if d.svc.Config.Notifications {
		d.notes = d.svc.Bus.Subscribe(ctx)
	}

	log.Info(log.CatMonitor, "Starting daemon", "loops", d.Loops(), "titles", d.svc.Titles.Len())
	for _, l := range d.loops {
		d.wg.Add(1)
		go func(l loop) {
			defer d.wg.Done()
			if err := l.run(ctx); err != nil {
				log.ErrorErr(log.CatMonitor, "Loop exited with error", err, "loop", l.name)
			}
		}(l)
	}

	<-ctx.Done()
	d.wg.Wait()
	log.Info(log.CatMonitor, "Daemon stopped")
	return nil
}

// Stop cancels the loops. Start returns once they have all exited.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}
