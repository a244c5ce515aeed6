// Package app assembles dockswap's long-lived services from configuration:
// the database, the title registry, the sync engine and the notification
// bus. Commands open one Services, use it, and close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/dockswap/internal/config"
	"github.com/zjrosen/dockswap/internal/flags"
	"github.com/zjrosen/dockswap/internal/infrastructure/sqlite"
	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/monitor"
	"github.com/zjrosen/dockswap/internal/notify"
	"github.com/zjrosen/dockswap/internal/paths"
	"github.com/zjrosen/dockswap/internal/platform/regblob"
	"github.com/zjrosen/dockswap/internal/reconcile"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
	"github.com/zjrosen/dockswap/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// Options overrides collaborators that Open would otherwise build from the
// configuration. Zero fields keep the defaults.
type Options struct {
	Blobs   syncengine.RegistryBlobService
	Clock   syncengine.Clock
	Decider reconcile.Decider
}

// Services is the assembled application.
type Services struct {
	Config  config.Config
	DataDir string
	States  monitor.States
	Flags   *flags.Registry

	DB      *sqlite.DB
	Titles  *registry.Registry
	Engine  *syncengine.Engine
	Bus     *notify.Bus
	Decider reconcile.Decider

	tracing *tracing.Provider
}

// Open builds Services from cfg with default collaborators.
func Open(cfg config.Config) (*Services, error) {
	return OpenWith(cfg, Options{})
}

// OpenWith builds Services from cfg, using any collaborators set in opts.
func OpenWith(cfg config.Config, opts Options) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	states := monitor.States{A: domain.StateKey(cfg.States.A), B: domain.StateKey(cfg.States.B)}

	dataDir := paths.DataDir(cfg.DataDir)
	dbPath := paths.Resolve(dataDir, cfg.Database, config.DefaultDatabase)
	db, err := sqlite.NewDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	titles := registry.NewDurable(db.TitleRepository())
	if err := titles.Load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading titles: %w", err)
	}

	tcfg := cfg.Tracing
	if tcfg.Exporter == "file" {
		tcfg.FilePath = paths.Resolve(dataDir, tcfg.FilePath, config.DefaultTraces)
	}
	provider, err := tracing.NewProvider(tcfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("starting tracing: %w", err)
	}

	bus := notify.NewBus(cfg.Notifications)

	blobs := opts.Blobs
	if blobs == nil {
		blobs = regblob.New()
	}
	engine := syncengine.New(syncengine.Config{
		Blobs:     blobs,
		Persister: titles,
		Notifier:  bus,
		Clock:     opts.Clock,
		Tracer:    provider.Tracer(),
	})

	decider := opts.Decider
	if decider == nil {
		decider = NewDecider(cfg.ConflictPolicy)
	}

	log.Info(log.CatConfig, "Services opened",
		"data_dir", dataDir, "database", dbPath, "titles", titles.Len(),
		"states", fmt.Sprintf("%s/%s", states.A, states.B), "tracing", provider.Enabled())

	return &Services{
		Config:  cfg,
		DataDir: dataDir,
		States:  states,
		Flags:   flags.New(cfg.Flags),
		DB:      db,
		Titles:  titles,
		Engine:  engine,
		Bus:     bus,
		Decider: decider,
		tracing: provider,
	}, nil
}

// NewDecider returns the conflict decider for a conflict_policy value.
// The prompt policy falls back to keeping the stored snapshot when there is
// no terminal to ask on.
func NewDecider(policy string) reconcile.Decider {
	switch policy {
	case config.ConflictKeepLive:
		return reconcile.PolicyDecider{Resolution: reconcile.KeepLive}
	case config.ConflictKeepStored:
		return reconcile.PolicyDecider{Resolution: reconcile.KeepStored}
	default:
		return reconcile.NewPromptDecider(reconcile.PolicyDecider{Resolution: reconcile.KeepStored})
	}
}

// Reconciler returns a reconciliation pass over the registry.
func (s *Services) Reconciler() *reconcile.Pass {
	return reconcile.NewPass(s.Engine, s.Titles, s.Decider, s.Bus)
}

// Close flushes traces, closes the bus and the database.
func (s *Services) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing traces: %w", err))
	}
	s.Bus.Close()
	if err := s.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}
