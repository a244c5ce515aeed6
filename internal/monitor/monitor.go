package monitor

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/reconcile"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/registry"
	"github.com/zjrosen/dockswap/internal/tracing"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = time.Second

// TitleLister returns registered titles.
type TitleLister interface {
	List(q registry.ListQuery) []*domain.Title
}

// Reconciler runs the first-observation pass.
type Reconciler interface {
	Run(ctx context.Context, current domain.StateKey) reconcile.Report
}

// TransitionFunc is called after a transition has been applied. from is
// empty for the first observation.
type TransitionFunc func(from, to domain.StateKey)

// Config wires a StateMonitor.
type Config struct {
	Source       SignalSource
	States       States
	Titles       TitleLister
	Engine       *syncengine.Engine
	Reconciler   Reconciler
	Interval     time.Duration
	OnTransition TransitionFunc
}

// StateMonitor polls the signal and applies transitions.
type StateMonitor struct {
	source     SignalSource
	states     States
	titles     TitleLister
	engine     *syncengine.Engine
	reconciler Reconciler
	interval   time.Duration
	onChange   TransitionFunc

	mu       sync.RWMutex
	previous domain.StateKey
}

// New creates a StateMonitor.
func New(cfg Config) *StateMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &StateMonitor{
		source:     cfg.Source,
		states:     cfg.States,
		titles:     cfg.Titles,
		engine:     cfg.Engine,
		reconciler: cfg.Reconciler,
		interval:   interval,
		onChange:   cfg.OnTransition,
	}
}

// Current returns the last applied state, or "" before the first
// observation.
func (m *StateMonitor) Current() domain.StateKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}

// Run polls until ctx is cancelled. Cancellation is checked at the top of
// every iteration.
func (m *StateMonitor) Run(ctx context.Context) error {
	log.Info(log.CatMonitor, "State monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			log.Info(log.CatMonitor, "State monitor stopped")
			return nil
		}
		if _, err := m.Poll(ctx); err != nil {
			log.WarnErr(log.CatMonitor, "Reading signal failed", err)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Poll reads the signal once and applies a transition when the state
// changed. It reports whether a transition ran.
func (m *StateMonitor) Poll(ctx context.Context) (bool, error) {
	on, known, err := m.source.Current(ctx)
	if err != nil {
		return false, err
	}
	if !known {
		return false, nil
	}
	next := m.states.Key(on)
	prev := m.Current()
	if next == prev {
		return false, nil
	}

	m.transition(ctx, prev, next)

	m.mu.Lock()
	m.previous = next
	m.mu.Unlock()
	if m.onChange != nil {
		m.onChange(prev, next)
	}
	return true, nil
}

func (m *StateMonitor) transition(ctx context.Context, from, to domain.StateKey) {
	ctx, span := m.engine.Tracer().Start(ctx, tracing.SpanTransition, trace.WithAttributes(
		attribute.String(tracing.AttrStateFrom, string(from)),
		attribute.String(tracing.AttrStateTo, string(to)),
	))
	defer span.End()

	if from.IsZero() {
		log.Info(log.CatMonitor, "First state observed, reconciling", "state", to)
		m.reconciler.Run(ctx, to)
		return
	}

	log.Info(log.CatMonitor, "State changed", "from", from, "to", to)
	plan := syncengine.FullSwap(from, to)
	failures := 0
	for _, t := range m.titles.List(registry.ListQuery{SyncableOnly: true}) {
		if _, err := m.engine.SyncTitle(ctx, t, plan); err != nil {
			failures++
			log.ErrorErr(log.CatMonitor, "Title sync failed", err, "title", t.Name)
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrFailures, failures))
}
